package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"sinhome/internal/gateway/handlers"
	"sinhome/pkg/logger"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR response. The
// body is only written when the handler had not started its response.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}

			logger.Error().
				Interface("panic", v).
				Str("request_id", RequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")

			if !rec.written {
				handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "internal server error")
			}
		}()

		next.ServeHTTP(rec, r)
	})
}
