package jsvm

// RunResult is the outcome of one execution: console lines in emission
// order, the display string of whatever the script threw (absent on
// success) and the elapsed wall-clock time.
type RunResult struct {
	Output     []string `json:"output"`
	Error      *string  `json:"error,omitempty"`
	DurationMs int64    `json:"durationMs"`
}

// Failed reports whether the run threw.
func (r *RunResult) Failed() bool {
	return r.Error != nil
}

// ErrorMessage returns the error text, or "" when the run succeeded.
func (r *RunResult) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// NewInfoResult returns a successful result carrying fixed lines and no
// measured duration.
func NewInfoResult(lines ...string) *RunResult {
	out := make([]string, len(lines))
	copy(out, lines)
	return &RunResult{Output: out}
}

// NewErrorResult returns a failed result with the given output so far.
func NewErrorResult(output []string, msg string, durationMs int64) *RunResult {
	if output == nil {
		output = []string{}
	}
	return &RunResult{Output: output, Error: &msg, DurationMs: durationMs}
}
