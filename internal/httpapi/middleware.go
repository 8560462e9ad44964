package httpapi

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggerMiddleware logs method, path and duration for every request.
// Grounded on walletserver/middleware.Logger; logs through logrus's
// package-level standard logger.
func LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.Infof("%s %s %s", r.Method, r.RequestURI, time.Since(start))
	})
}

// CORSMiddleware sets Access-Control-Allow-Origin on every response,
// including error responses, per spec.md §7.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// writeError writes a plain-text error body with the given status,
// the shape every handler in this package uses for rejections (406
// for protocol/acceptance failures, 400 for malformed requests).
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(message))
}
