package handler

import (
	"net/http"

	"github.com/hitoshi/workdesk/internal/gate"
)

// sessionResponse は getSession() 契約のHTTP表現。
type sessionResponse struct {
	IsLoaded   bool `json:"is_loaded"`
	IsSignedIn bool `json:"is_signed_in"`
}

// NewSessionHandler は現在のセッションスナップショットを返すハンドラーを生成する。
// GET /auth/session
// 解決中の状態は一時的なものなので、レスポンスはキャッシュさせない。
func NewSessionHandler(provider gate.SessionProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := provider.Session(r)
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, sessionResponse{
			IsLoaded:   s.IsLoaded,
			IsSignedIn: s.IsLoaded && s.IsSignedIn,
		})
	}
}
