// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/workdesk/internal/auth"
	"github.com/hitoshi/workdesk/internal/identity"
	"github.com/hitoshi/workdesk/internal/middleware"
	"github.com/hitoshi/workdesk/internal/model"
)

const (
	sessionCookieName = identity.SessionCookieName
	oauthStateCookie  = "oauth_state"
	// postSignInCookie はサインイン完了後の戻り先パスを保持する。
	postSignInCookie = "post_sign_in"
	// サインインフロー用Cookieの有効期間（秒）
	signInFlowMaxAge = 600
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int    // セッションCookieの有効期間（秒）
	ReturnPath    string // redirect_url が不正な場合の戻り先
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	if config.ReturnPath == "" {
		config.ReturnPath = "/chat"
	}
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Login はサインインフローを開始する。
// GET /auth/google/login?redirect_url=/chat
// stateと戻り先をCookieに預けてIdPの同意画面へ307で送る。戻り先は同一オリジンのパスに限る。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := newOAuthState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	returnPath := auth.SanitizeReturnPath(r.URL.Query().Get("redirect_url"), h.config.ReturnPath)
	h.setFlowCookie(w, oauthStateCookie, state, signInFlowMaxAge)
	h.setFlowCookie(w, postSignInCookie, returnPath, signInFlowMaxAge)

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はIdPからの戻りを受けてセッションを発行し、預けておいた戻り先へ307で送る。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	if c, err := r.Cookie(oauthStateCookie); err != nil || state == "" || c.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}
	h.setFlowCookie(w, oauthStateCookie, "", -1)

	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	setSessionCookie(w, h.config, session.ID, h.config.SessionMaxAge)

	// 戻り先Cookieはクライアントが書き換えられるので再検証する
	returnPath := h.config.ReturnPath
	if c, err := r.Cookie(postSignInCookie); err == nil {
		returnPath = auth.SanitizeReturnPath(c.Value, h.config.ReturnPath)
	}
	h.setFlowCookie(w, postSignInCookie, "", -1)

	http.Redirect(w, r, h.absoluteURL(returnPath), http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄してトップへ303で戻す。
// POST /auth/logout
// サーバー側の破棄に失敗してもCookieは必ず消す。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		if err := h.service.Logout(r.Context(), c.Value); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}
	setSessionCookie(w, h.config, "", -1)
	http.Redirect(w, r, h.absoluteURL("/"), http.StatusSeeOther)
}

// Me はサインイン中のユーザーを返す。
// GET /auth/me
// セッションが無い・切れている場合は401、ストア障害は500。
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), c.Value)
	switch {
	case errors.Is(err, auth.ErrNoSession):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	case err != nil:
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
}

// setSessionCookie はセッションCookieを書く。maxAgeが負なら削除。
func setSessionCookie(w http.ResponseWriter, cfg AuthHandlerConfig, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setFlowCookie はサインインフロー中だけ使うCookieを書く。ホスト限定でDomainは付けない。
func (h *AuthHandler) setFlowCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) absoluteURL(path string) string {
	return strings.TrimRight(h.config.BaseURL, "/") + path
}

func newOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
