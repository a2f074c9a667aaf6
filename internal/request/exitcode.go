package request

// Reserved process exit codes. Completed requests propagate the command's own
// exit code; everything else maps to one of these so a script can tell "the
// user said no" apart from "the command ran and failed".
const (
	ExitDenied          = 120
	ExitTimedOut        = 121
	ExitExecutionFailed = 122
	ExitConnectivity    = 123
)

// ExitCode maps a result to the exit code the relay client reports.
func ExitCode(res *Result) int {
	if res == nil {
		return ExitConnectivity
	}
	switch res.Outcome {
	case OutcomeCompleted:
		if res.ExitCode == nil {
			return ExitExecutionFailed
		}
		return *res.ExitCode
	case OutcomeDenied:
		return ExitDenied
	case OutcomeTimedOut:
		return ExitTimedOut
	default:
		return ExitExecutionFailed
	}
}

// Reserved reports whether code is one of the reserved exit codes.
func Reserved(code int) bool {
	switch code {
	case ExitDenied, ExitTimedOut, ExitExecutionFailed, ExitConnectivity:
		return true
	default:
		return false
	}
}
