// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/workdesk/internal/gate"
	"github.com/hitoshi/workdesk/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// DefaultSignInPath はサインインフローの開始エンドポイント。
const DefaultSignInPath = "/auth/google/login"

// RedirectRecorder はサインインへのリダイレクト発行を観測する。
type RedirectRecorder interface {
	RecordRedirect(returnPath string)
}

// AccessGateConfig はアクセスゲートミドルウェアの設定。
type AccessGateConfig struct {
	SignInPath     string // 未認証時のリダイレクト先。空の場合はDefaultSignInPath
	RefreshSeconds int    // 解決中プレースホルダーの再評価間隔（秒）
	Recorder       RedirectRecorder
}

func (c AccessGateConfig) withDefaults() AccessGateConfig {
	if c.SignInPath == "" {
		c.SignInPath = DefaultSignInPath
	}
	if c.RefreshSeconds <= 0 {
		c.RefreshSeconds = 2
	}
	return c
}

// SignInURL はreturnPathを戻り先として埋め込んだサインインURLを返す。
func (c AccessGateConfig) SignInURL(returnPath string) string {
	c = c.withDefaults()
	return c.SignInPath + "?redirect_url=" + url.QueryEscape(returnPath)
}

var resolvingPage = template.Must(template.New("resolving").Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="{{.Refresh}}">
<title>読み込み中</title>
</head>
<body>
<main aria-busy="true"><p>セッションを確認しています…</p></main>
</body>
</html>
`))

// NewAccessGateMiddleware はページ用のアクセスゲートミドルウェアを返す。
// リクエストごとにゲートを評価し、判定結果をHTTPレスポンスとして解釈する。
//
//	Resolving       → 200 プレースホルダー（保護対象は描画しない、Refreshで再評価）
//	Unauthenticated → 307 サインインへのリダイレクト（保護対象は描画しない）
//	Authenticated   → ユーザーIDをコンテキストに注入して保護対象を描画
func NewAccessGateMiddleware(g *gate.Gate, cfg AccessGateConfig) func(next http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, session := g.Evaluate(r)

			switch decision.State {
			case gate.StateAuthenticated:
				next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), session.UserID)))

			case gate.StateUnauthenticated:
				returnPath := g.ReturnPath()
				if decision.Redirect != nil {
					returnPath = decision.Redirect.ReturnPath
				}
				if cfg.Recorder != nil {
					cfg.Recorder.RecordRedirect(returnPath)
				}
				w.Header().Set("Cache-Control", "no-store")
				http.Redirect(w, r, cfg.SignInURL(returnPath), http.StatusTemporaryRedirect)

			default:
				writeResolving(w, cfg.RefreshSeconds)
			}
		})
	}
}

// NewAPIGateMiddleware はAPI用のアクセスゲートミドルウェアを返す。
// ページと同じ判定を使い、リダイレクトの代わりにJSONエラーを返す。
func NewAPIGateMiddleware(g *gate.Gate, retryAfterSeconds int) func(next http.Handler) http.Handler {
	if retryAfterSeconds <= 0 {
		retryAfterSeconds = 2
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, session := g.Evaluate(r)

			switch decision.State {
			case gate.StateAuthenticated:
				next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), session.UserID)))
			case gate.StateUnauthenticated:
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			default:
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
				WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewSessionResolvingError())
			}
		})
	}
}

func writeResolving(w http.ResponseWriter, refreshSeconds int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Refresh", strconv.Itoa(refreshSeconds))
	w.WriteHeader(http.StatusOK)
	if err := resolvingPage.Execute(w, struct{ Refresh int }{refreshSeconds}); err != nil {
		slog.Error("failed to render resolving page",
			slog.String("error", err.Error()),
		)
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// アクセスゲートを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// アクセスログが外側にあれば、そちらにもユーザーIDを書き戻す。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	noteUserID(ctx, userID)
	return context.WithValue(ctx, userIDContextKey, userID)
}
