// Package gate はセッション状態に基づいて保護対象の描画可否を判定するアクセスゲートを提供する。
//
// ゲートは外部のIDプロバイダーが公開するセッションスナップショットのみを観測し、
// 次の3状態のいずれかを返す純粋関数として実装する。
//
//	Resolving       : IsLoaded == false
//	Unauthenticated : IsLoaded == true  && IsSignedIn == false
//	Authenticated   : IsLoaded == true  && IsSignedIn == true
//
// リダイレクトは副作用として実行せず、RedirectCommandとして呼び出し側に返す。
// 実際のナビゲーションはHTTPミドルウェア側で解釈する。
package gate

import "net/http"

// DefaultReturnPath はサインイン完了後に戻す既定のパス。
const DefaultReturnPath = "/chat"

// State はゲートの判定状態を表す。
type State string

const (
	// StateResolving はIDプロバイダーが初期解決を完了していない状態。
	StateResolving State = "resolving"
	// StateUnauthenticated は解決済みだが有効な認証済みIDが存在しない状態。
	StateUnauthenticated State = "unauthenticated"
	// StateAuthenticated は有効な認証済みIDが存在する状態。
	StateAuthenticated State = "authenticated"
)

// Session はIDプロバイダーから観測したセッションのスナップショット。
// ゲートは読み取るだけで変更しない。
type Session struct {
	IsLoaded   bool
	IsSignedIn bool
	UserID     string // IsSignedIn の場合のみ設定される
}

// RedirectCommand はサインインフローへのリダイレクト指示。
// ReturnPath はサインイン完了後に到達させたい保護パス。
type RedirectCommand struct {
	ReturnPath string
}

// Decision はゲートの判定結果。
// Redirect は StateUnauthenticated の場合のみ非nil。
type Decision struct {
	State    State
	Redirect *RedirectCommand
}

// Decide はセッションスナップショットから判定結果を算出する。
// IsLoaded が false の場合は IsSignedIn の値に関わらず StateResolving を返す。
func Decide(s Session, returnPath string) Decision {
	if returnPath == "" {
		returnPath = DefaultReturnPath
	}

	switch {
	case !s.IsLoaded:
		return Decision{State: StateResolving}
	case !s.IsSignedIn:
		return Decision{
			State:    StateUnauthenticated,
			Redirect: &RedirectCommand{ReturnPath: returnPath},
		}
	default:
		return Decision{State: StateAuthenticated}
	}
}

// SessionProvider はリクエストごとのセッションスナップショットを返す外部IDプロバイダー。
type SessionProvider interface {
	Session(r *http.Request) Session
}

// DecisionRecorder はゲートの判定結果を観測する。判定には影響しない。
type DecisionRecorder interface {
	RecordGateDecision(state State)
}

// Option はGateの生成オプション。
type Option func(*Gate)

// WithRecorder は判定結果の記録先を設定する。
func WithRecorder(rec DecisionRecorder) Option {
	return func(g *Gate) {
		g.recorder = rec
	}
}

// Gate はSessionProviderを注入されたアクセスゲート。
// 内部状態を持たず、Evaluateの呼び出しごとにスナップショットを読み直す。
type Gate struct {
	provider   SessionProvider
	returnPath string
	recorder   DecisionRecorder
}

// New はGateを生成する。returnPathが空の場合はDefaultReturnPathを使用する。
func New(provider SessionProvider, returnPath string, opts ...Option) *Gate {
	if returnPath == "" {
		returnPath = DefaultReturnPath
	}
	g := &Gate{
		provider:   provider,
		returnPath: returnPath,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ReturnPath はサインイン後の戻り先パスを返す。
func (g *Gate) ReturnPath() string {
	return g.returnPath
}

// Evaluate はリクエスト時点のセッションを取得して判定する。
// 判定結果と、判定に使用したスナップショットを返す。
func (g *Gate) Evaluate(r *http.Request) (Decision, Session) {
	s := g.provider.Session(r)
	d := Decide(s, g.returnPath)
	if g.recorder != nil {
		g.recorder.RecordGateDecision(d.State)
	}
	return d, s
}
