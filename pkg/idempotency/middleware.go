package idempotency

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dmehra2102/food-order-platform/pkg/auth"
	"github.com/dmehra2102/food-order-platform/pkg/httpx"
)

const (
	HeaderKey    = "Idempotency-Key"
	HeaderReplay = "X-Idempotent-Replay"
)

// Middleware replays the stored response when a request is retried with the
// same Idempotency-Key. Requests without the header pass through. Keys are
// scoped to the authenticated caller.
func Middleware(log *slog.Logger, store Store, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderKey))
			if key == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			subject := "anonymous"
			if c, ok := auth.CallerFromContext(r.Context()); ok {
				subject = c.Subject
			}
			scoped := sha256Hex([]byte(subject + "\x00" + key))
			fingerprint := sha256Hex([]byte(r.Method + "\x00" + r.URL.Path + "\x00" + string(body)))

			res, err := store.Reserve(r.Context(), scoped, fingerprint, ttl)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				httpx.WriteError(r.Context(), w, httpx.NewError("idempotency_key_reused", "idempotency key was used for a different request", http.StatusUnprocessableEntity))
				return
			case err != nil:
				log.Error("idempotency reserve failed", "err", err)
				httpx.WriteError(r.Context(), w, httpx.NewError("dependency_unavailable", "idempotency store unavailable", http.StatusServiceUnavailable))
				return
			}

			switch res.State {
			case ReservationStateCompleted:
				for name, values := range res.Record.ResponseHeaders {
					for _, v := range values {
						w.Header().Add(name, v)
					}
				}
				w.Header().Set(HeaderReplay, "true")
				w.WriteHeader(res.Record.ResponseStatus)
				_, _ = w.Write(res.Record.ResponseBody)
				return
			case ReservationStatePending:
				httpx.WriteError(r.Context(), w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// only successful outcomes are replayed; failures may be retried
			if rec.status >= 300 {
				if err := store.Release(r.Context(), scoped); err != nil {
					log.Warn("idempotency release failed", "err", err)
				}
				return
			}
			resp := Response{Status: rec.status, Headers: w.Header().Clone(), Body: rec.body.Bytes()}
			if err := store.SaveResponse(r.Context(), scoped, fingerprint, resp, ttl); err != nil {
				log.Error("idempotency save failed", "err", err)
			}
		})
	}
}

// recorder tees the response to the client and a buffer.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
