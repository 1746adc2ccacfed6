package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"runbox/internal/catalog"
	"runbox/internal/jsvm"
	"runbox/internal/progress"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error envelope %q: %v", w.Body.String(), err)
	}
	return resp.Error
}

func TestSendJSONRunResult(t *testing.T) {
	w := httptest.NewRecorder()
	SendJSON(w, http.StatusOK, jsvm.NewErrorResult([]string{"before"}, "boom", 3))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}
	want := `{"output":["before"],"error":"boom","durationMs":3}` + "\n"
	if w.Body.String() != want {
		t.Errorf("body = %s, want %s", w.Body.String(), want)
	}
}

func TestSendJSONNoBody(t *testing.T) {
	w := httptest.NewRecorder()
	SendJSON(w, http.StatusNoContent, nil)

	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d with %q, want empty 204", w.Code, w.Body.String())
	}
}

func TestSendError(t *testing.T) {
	w := httptest.NewRecorder()
	SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "module is required")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
	if got := decodeError(t, w); got != (ErrorDetail{Code: ErrCodeInvalidRequest, Message: "module is required"}) {
		t.Errorf("error = %+v", got)
	}
}

func TestSendLookupError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown module", fmt.Errorf("%w: nope", catalog.ErrUnknownModule), http.StatusNotFound, ErrCodeUnknownModule},
		{"unknown exercise", fmt.Errorf("%w: m/e", catalog.ErrUnknownExercise), http.StatusNotFound, ErrCodeUnknownExercise},
		{"progress lookup", fmt.Errorf("%w: m/e", progress.ErrUnknownExercise), http.StatusNotFound, ErrCodeUnknownExercise},
		{"other", errors.New("disk full"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SendLookupError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decodeError(t, w); got.Code != tt.wantCode || got.Message != tt.err.Error() {
				t.Errorf("error = %+v", got)
			}
		})
	}
}
