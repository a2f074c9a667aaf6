// Package authkeys manages the restricted authorized_keys entry that limits a
// key to the backchannel entry point, and reads authorized keys for the
// embedded SSH listener.
package authkeys

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Tag marks entries installed by backchannel so they can be replaced.
const Tag = "# backchannel-key"

// restrictions applied to the entry besides the forced command.
const restrictions = "no-pty,no-port-forwarding,no-agent-forwarding,no-X11-forwarding,restrict"

// ForcedEntry returns an authorized_keys line that forces entryPoint for
// pubkey. pubkey is an authorized_keys formatted key; its comment is dropped.
func ForcedEntry(entryPoint, pubkey string) (string, error) {
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubkey))
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	if strings.ContainsAny(entryPoint, "\"\n") {
		return "", fmt.Errorf("entry point %q cannot be quoted in authorized_keys", entryPoint)
	}
	marshaled := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key)))
	return fmt.Sprintf(`command="%s",%s %s %s`, entryPoint, restrictions, marshaled, Tag), nil
}

// Install rewrites the authorized_keys file at path: previous backchannel
// entries and blank lines are dropped and entry is appended. The file is
// written 0600 in a 0700 directory.
func Install(path, entry string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(existing))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasSuffix(strings.TrimSpace(line), Tag) {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	out.WriteString(entry)
	out.WriteByte('\n')

	// Write to a temp file and rename so a crash never truncates the file.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".authorized_keys-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(out.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// LoadAllowed parses every key in an authorized_keys file. Options on the
// lines are ignored; comments and blank lines are skipped.
func LoadAllowed(path string) ([]ssh.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}

	var keys []ssh.PublicKey
	for len(bytes.TrimSpace(data)) > 0 {
		key, _, _, rest, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			// Unparsable lines are skipped, so an error means no key remains.
			break
		}
		keys = append(keys, key)
		data = rest
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no keys in %s", path)
	}
	return keys, nil
}
