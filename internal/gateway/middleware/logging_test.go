package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

func TestLoggingRecordsRequest(t *testing.T) {
	var buf bytes.Buffer
	handler := Logging(zerolog.New(&buf), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/run", nil)
	req.RemoteAddr = "203.0.113.9:40000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	for _, want := range []string{`"method":"POST"`, `"path":"/api/v1/run"`, `"status":202`, `"ip":"203.0.113.9"`, `"route":"unmatched"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log line missing %s: %s", want, buf.String())
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remoteIP string
		want     string
	}{
		{
			name:     "X-Forwarded-For",
			headers:  map[string]string{"X-Forwarded-For": "192.168.1.1"},
			remoteIP: "127.0.0.1:12345",
			want:     "192.168.1.1",
		},
		{
			name:     "X-Real-IP",
			headers:  map[string]string{"X-Real-IP": "10.0.0.1"},
			remoteIP: "127.0.0.1:12345",
			want:     "10.0.0.1",
		},
		{
			name:     "RemoteAddr fallback",
			headers:  map[string]string{},
			remoteIP: "127.0.0.1:12345",
			want:     "127.0.0.1",
		},
		{
			name:     "X-Forwarded-For chain",
			headers:  map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"},
			remoteIP: "127.0.0.1:12345",
			want:     "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteIP
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			got := getClientIP(req)
			if got != tt.want {
				t.Errorf("getClientIP() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLoggingObservesRouteTemplate(t *testing.T) {
	type observation struct {
		method, route string
		status        int
	}
	var got []observation
	observe := func(method, route string, status int) {
		got = append(got, observation{method, route, status})
	}

	router := mux.NewRouter()
	router.Use(RouteLabel)
	router.HandleFunc("/modules/{module}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	var buf bytes.Buffer
	handler := Logging(zerolog.New(&buf), observe)(router)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/modules/module-1", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if len(got) != 2 {
		t.Fatalf("observations = %d, want 2", len(got))
	}
	if got[0] != (observation{http.MethodGet, "/modules/{module}", http.StatusTeapot}) {
		t.Errorf("first observation = %+v", got[0])
	}
	if got[1] != (observation{http.MethodGet, UnmatchedRoute, http.StatusNotFound}) {
		t.Errorf("second observation = %+v", got[1])
	}
	if !strings.Contains(buf.String(), `"route":"/modules/{module}"`) {
		t.Errorf("log output missing route: %s", buf.String())
	}
}

func TestLoggingSkipsHealth(t *testing.T) {
	var buf bytes.Buffer
	handler := Logging(zerolog.New(&buf), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if buf.Len() != 0 {
		t.Errorf("health request was logged: %s", buf.String())
	}
}
