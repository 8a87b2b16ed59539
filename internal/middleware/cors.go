package middleware

import "net/http"

const (
	corsAllowMethods = "GET, POST, DELETE, OPTIONS"
	// X-CSRF-Token はdouble-submitのヘッダー。プリフライトで許可しないとクロスオリジンの状態変更が通らない。
	corsAllowHeaders = "Content-Type, X-CSRF-Token"
	corsMaxAge       = "86400"
)

// NewCORSMiddleware はフロントエンドの単一オリジンを許可するCORSミドルウェアを返す。
// Cookieを送らせるため "*" は使わない。プリフライト(OPTIONS)は204で打ち切る。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
