// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, record, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeSessionResolving  = "SESSION_RESOLVING"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeInvalidCollection = "INVALID_COLLECTION"
	ErrCodeRecordNotFound    = "RECORD_NOT_FOUND"
	ErrCodeInvalidRecord     = "INVALID_RECORD"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeCSRF              = "CSRF_INVALID"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "サインインしてから再度お試しください。",
	}
}

// NewSessionResolvingError はセッション解決中であることを示すエラーを生成する。
// クライアントはRetry-Afterに従って再試行する。
func NewSessionResolvingError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionResolving,
		Message:  "セッションを確認しています。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidCollectionError は無効なコレクション名エラーを生成する。
func NewInvalidCollectionError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCollection,
		Message:  fmt.Sprintf("無効なコレクション名です: %s", name),
		Category: "validation",
		Action:   "英小文字で始まり、英小文字・数字・アンダースコアのみを含む63文字以内の名前を指定してください。",
	}
}

// NewRecordNotFoundError はレコード未検出エラーを生成する。
func NewRecordNotFoundError(recordID string) *APIError {
	return &APIError{
		Code:     ErrCodeRecordNotFound,
		Message:  fmt.Sprintf("指定されたレコードが見つかりません: %s", recordID),
		Category: "record",
		Action:   "レコードIDを確認してください。",
	}
}

// NewInvalidRecordError は不正なレコード本文エラーを生成する。
func NewInvalidRecordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRecord,
		Message:  fmt.Sprintf("レコードの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "JSONオブジェクト形式でレコードを指定してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}
