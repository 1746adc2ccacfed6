package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runbox/internal/jsvm"
	"runbox/internal/runner"
)

type fakeRunner struct {
	code, module string
	result       *jsvm.RunResult
}

func (f *fakeRunner) Run(_ context.Context, code, moduleID string, _ ...runner.RunOption) *jsvm.RunResult {
	f.code, f.module = code, moduleID
	return f.result
}

func TestRunHandler(t *testing.T) {
	fr := &fakeRunner{result: jsvm.NewErrorResult([]string{"before"}, "boom", 3)}
	handler := RunHandler(fr)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/run", strings.NewReader(`{"code":"throw 1","module":"module-1-templating"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "throw 1", fr.code)
	assert.Equal(t, "module-1-templating", fr.module)

	var got jsvm.RunResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []string{"before"}, got.Output)
	require.NotNil(t, got.Error)
	assert.Equal(t, "boom", *got.Error)
	assert.Equal(t, int64(3), got.DurationMs)
}

func TestRunHandlerEmptyCode(t *testing.T) {
	fr := &fakeRunner{result: jsvm.NewInfoResult()}
	w := httptest.NewRecorder()
	RunHandler(fr).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/run", strings.NewReader(`{"module":"m"}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"output":[],"durationMs":0}`, w.Body.String())
}

func TestRunHandlerBadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"code":`},
		{"missing module", `{"code":"console.log(1)"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeRunner{}
			w := httptest.NewRecorder()
			RunHandler(fr).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/run", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, fr.module)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, ErrCodeInvalidRequest, resp.Error.Code)
		})
	}
}
