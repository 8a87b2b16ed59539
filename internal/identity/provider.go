// Package identity はセッションストアに基づくIDプロバイダーを提供する。
// gate.SessionProvider を実装し、リクエストごとのセッションスナップショットを返す。
package identity

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hitoshi/workdesk/internal/gate"
	"github.com/hitoshi/workdesk/internal/model"
)

// SessionCookieName はセッションIDを保持するHTTP Only Cookieの名前。
const SessionCookieName = "session_id"

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// Pinger はバックエンドストアの疎通確認インターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// FailureRecorder はセッション解決失敗を観測する。
type FailureRecorder interface {
	RecordSessionResolutionFailure()
}

// Provider はセッションストアを参照するIDプロバイダー。
// 初期解決（ストアへの疎通確認）が完了するまでは全リクエストを未解決として扱う。
type Provider struct {
	finder   SessionFinder
	ready    atomic.Bool
	failures FailureRecorder
}

// NewProvider はProviderを生成する。生成直後は未解決状態。
func NewProvider(finder SessionFinder) *Provider {
	return &Provider{finder: finder}
}

// SetFailureRecorder はセッション解決失敗の記録先を設定する。
func (p *Provider) SetFailureRecorder(rec FailureRecorder) {
	p.failures = rec
}

// MarkReady は初期解決の完了を記録する。
func (p *Provider) MarkReady() {
	if p.ready.CompareAndSwap(false, true) {
		slog.Info("identity provider resolved")
	}
}

// Ready は初期解決が完了しているかを返す。
func (p *Provider) Ready() bool {
	return p.ready.Load()
}

// WaitReady はストアへの疎通が確認できるまでintervalごとにPingを繰り返し、
// 成功した時点でMarkReadyを呼ぶ。ctxがキャンセルされた場合はctx.Err()を返す。
// 疎通が確立しない限りProviderは未解決のままとなる。
func (p *Provider) WaitReady(ctx context.Context, pinger Pinger, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		err := pinger.PingContext(pingCtx)
		cancel()
		if err == nil {
			p.MarkReady()
			return nil
		}
		slog.Warn("identity provider not ready",
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Session はリクエストのCookieからセッションを解決し、スナップショットを返す。
//
//	未解決                 → {IsLoaded: false}
//	Cookieなし / 空        → {IsLoaded: true, IsSignedIn: false}
//	期限切れ / 存在しない  → {IsLoaded: true, IsSignedIn: false}
//	有効なセッション       → {IsLoaded: true, IsSignedIn: true}
//	ストアのエラー         → {IsLoaded: false}（ログのみ記録）
func (p *Provider) Session(r *http.Request) gate.Session {
	if !p.Ready() {
		return gate.Session{}
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return gate.Session{IsLoaded: true}
	}

	session, err := p.finder.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to resolve session",
			slog.String("error", err.Error()),
		)
		if p.failures != nil {
			p.failures.RecordSessionResolutionFailure()
		}
		return gate.Session{}
	}
	if session == nil {
		return gate.Session{IsLoaded: true}
	}

	return gate.Session{
		IsLoaded:   true,
		IsSignedIn: true,
		UserID:     session.UserID,
	}
}

// compile-time interface check
var _ gate.SessionProvider = (*Provider)(nil)
