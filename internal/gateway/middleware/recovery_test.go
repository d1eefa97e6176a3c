package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"sinhome/internal/gateway/handlers"
)

func serveRecovered(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	Recovery(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil))
	return w
}

func TestRecovery_PassThrough(t *testing.T) {
	w := serveRecovered(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

func TestRecovery_Panic(t *testing.T) {
	w := serveRecovered(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var resp handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if resp.Error.Code != handlers.ErrCodeInternalError {
		t.Errorf("code = %s, want %s", resp.Error.Code, handlers.ErrCodeInternalError)
	}
}

func TestRecovery_PanicAfterWrite(t *testing.T) {
	w := serveRecovered(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		panic("late")
	})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want the already written 200", w.Code)
	}
	if got := w.Body.String(); got != "partial" {
		t.Errorf("body = %q, want only the partial write", got)
	}
}

func TestRecovery_AbortHandler(t *testing.T) {
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", v)
		}
	}()
	serveRecovered(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})
	t.Error("ErrAbortHandler was swallowed")
}
