package request

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// FrameVersion is the version of the result frame written by EncodeResult.
const FrameVersion = 1

// frameTag prefixes the result line so the decoder can skip anything a login
// shell or sshd printed before it.
const frameTag = "backchannel-result "

// maxFrameBytes bounds a single frame line accepted by DecodeResult.
const maxFrameBytes = 64 << 20

// ErrNoFrame is returned by DecodeResult when the stream ended without a
// result frame.
var ErrNoFrame = errors.New("no result frame in response")

// EncodeResult writes res as a single tagged JSON line.
func EncodeResult(w io.Writer, res *Result) error {
	if res.V == 0 {
		res.V = FrameVersion
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	line := make([]byte, 0, len(frameTag)+len(data)+1)
	line = append(line, frameTag...)
	line = append(line, data...)
	line = append(line, '\n')
	if _, err := w.Write(line); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// DecodeResult scans r for the first tagged result line and decodes it.
// Untagged lines are ignored.
func DecodeResult(r io.Reader) (*Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte(frameTag)) {
			continue
		}
		var res Result
		if err := json.Unmarshal(line[len(frameTag):], &res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		if res.V != FrameVersion {
			return nil, fmt.Errorf("decode result: unsupported frame version %d", res.V)
		}
		if !res.Outcome.Valid() {
			return nil, fmt.Errorf("decode result: %w: %q", ErrUnknownOutcome, res.Outcome)
		}
		if res.Outcome != OutcomeCompleted {
			res.ExitCode = nil
		} else if res.ExitCode == nil {
			return nil, errors.New("decode result: completed outcome without exit code")
		}
		return &res, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	return nil, ErrNoFrame
}
