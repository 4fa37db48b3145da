package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type requestLogCtxKey struct{}

// requestLog collects fields learned deeper in the chain (the user, once the
// session is resolved) for the outer logging and recovery middlewares.
type requestLog struct {
	mu     sync.Mutex
	fields log.Fields
}

func withRequestLog(r *http.Request) (*http.Request, *requestLog) {
	if rl, ok := r.Context().Value(requestLogCtxKey{}).(*requestLog); ok {
		return r, rl
	}
	rl := &requestLog{fields: log.Fields{}}
	return r.WithContext(context.WithValue(r.Context(), requestLogCtxKey{}, rl)), rl
}

func addRequestLogField(r *http.Request, key string, value any) {
	rl, ok := r.Context().Value(requestLogCtxKey{}).(*requestLog)
	if !ok {
		return
	}
	rl.mu.Lock()
	rl.fields[key] = value
	rl.mu.Unlock()
}

func (rl *requestLog) entry(r *http.Request) *log.Entry {
	fields := log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if flowID, ok := mux.Vars(r)["id"]; ok && strings.HasPrefix(r.URL.Path, "/flows/") {
		fields["flow"] = flowID
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, v := range rl.fields {
		fields[k] = v
	}
	return log.WithFields(fields)
}

func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, rl := withRequestLog(r)
			rl.entry(r).WithField("ua", r.Header.Get("User-Agent")).Trace(" ====> request")

			start := time.Now()
			next.ServeHTTP(w, r)
			rl.entry(r).WithField("took", time.Since(start).String()).Trace(" <==== served")
		})
	}
}
