package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"runbox/internal/jsvm"
	"runbox/internal/runner"
)

// maxRunBody caps the size of a run request.
const maxRunBody = 1 << 20

// CodeRunner executes exercise code.
type CodeRunner interface {
	Run(ctx context.Context, code, moduleID string, opts ...runner.RunOption) *jsvm.RunResult
}

// RunRequest is the body of POST /api/v1/run.
type RunRequest struct {
	Code   string `json:"code"`
	Module string `json:"module"`
}

// RunHandler executes the posted code. Script failures are part of the
// result, so any well-formed request gets a 200.
func RunHandler(r CodeRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body RunRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRunBody)).Decode(&body); err != nil {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
			return
		}
		if body.Module == "" {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "module is required")
			return
		}

		result := r.Run(req.Context(), body.Code, body.Module)
		SendJSON(w, http.StatusOK, result)
	}
}
