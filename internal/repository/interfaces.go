// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/workdesk/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentitiesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// RecordRepository は名前付きコレクションのレコード永続化インターフェース。
type RecordRepository interface {
	// Create はレコードを作成する。
	Create(ctx context.Context, record *model.Record) error
	// FindByID は所有者のコレクション内の指定IDのレコードを取得する。
	// 見つからない場合（他ユーザーのレコードを含む）はnilを返す。
	FindByID(ctx context.Context, ownerID, collection, id string) (*model.Record, error)
	// DeleteByID は所有者のコレクション内の指定IDのレコードを削除する。
	// 削除した場合はtrue、対象が存在しなかった場合はfalseを返す。
	DeleteByID(ctx context.Context, ownerID, collection, id string) (bool, error)
	// DeleteByOwner は所有者の全レコードを削除し、削除件数を返す。
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}
