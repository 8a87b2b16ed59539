// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/workdesk/internal/model"
	"github.com/hitoshi/workdesk/internal/repository"
)

// SessionRevoker はユーザーの全セッションを失効させるインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionRevoker interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// RecordPurger はユーザーが所有する全レコードを削除するインターフェース。
// repository.RecordRepositoryの部分集合として定義する。
type RecordPurger interface {
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	sessions SessionRevoker
	records  RecordPurger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sessions SessionRevoker) *Service {
	return &Service{
		userRepo: userRepo,
		sessions: sessions,
	}
}

// SetRecordPurger は退会時に所有レコードを削除する先を設定する。
func (s *Service) SetRecordPurger(p RecordPurger) {
	s.records = p
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → records → user（+ CASCADE: identities）
// セッションを先に消すことで、途中で失敗しても以降のリクエストは未認証として扱われる。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	if s.records != nil {
		n, err := s.records.DeleteByOwner(ctx, userID)
		if err != nil {
			return fmt.Errorf("レコードの削除に失敗しました: %w", err)
		}
		slog.Info("所有レコードを削除しました",
			slog.String("user_id", userID),
			slog.Int64("deleted_count", n),
		)
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
