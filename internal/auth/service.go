// Package auth はOAuth認証フロー、セッション管理、サインイン後の戻り先の検証を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/workdesk/internal/model"
	"github.com/hitoshi/workdesk/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "google", "github" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// SignInRecorder はサインイン結果を観測する。outcomeは "new_user" / "existing_user" / "failed"。
type SignInRecorder interface {
	RecordSignIn(outcome string)
}

const (
	SignInNewUser      = "new_user"
	SignInExistingUser = "existing_user"
	SignInFailed       = "failed"
)

// ErrNoSession はセッションIDが空、または期限切れ・未登録の場合のエラー。
var ErrNoSession = errors.New("session not found or expired")

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	recorder    SignInRecorder
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// SetSignInRecorder はサインイン結果の記録先を設定する。
func (s *Service) SetSignInRecorder(rec SignInRecorder) {
	s.recorder = rec
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback は認可コードからユーザーを特定（未登録なら作成）し、新しいセッションを発行する。
// 結果は成否にかかわらずSignInRecorderに1回だけ記録する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	session, outcome, err := s.signIn(ctx, code)
	if err != nil {
		outcome = SignInFailed
	}
	if s.recorder != nil {
		s.recorder.RecordSignIn(outcome)
	}
	return session, err
}

func (s *Service) signIn(ctx context.Context, code string) (*model.Session, string, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	userID, outcome, err := s.resolveUser(ctx, info)
	if err != nil {
		return nil, "", err
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}
	return session, outcome, nil
}

// resolveUser はIdPのユーザー情報に紐づくユーザーIDを返す。
// identityが未登録の場合はusersとidentitiesを同一トランザクションで作成する。
func (s *Service) resolveUser(ctx context.Context, info *OAuthUserInfo) (string, string, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", "", fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		slog.Info("sign-in by registered user",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return identity.UserID, SignInExistingUser, nil
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.NewString(),
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	link := &model.Identity{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}
	if err := s.userRepo.CreateWithIdentity(ctx, user, link); err != nil {
		return "", "", fmt.Errorf("failed to register user: %w", err)
	}

	slog.Info("sign-in registered a new user",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user.ID, SignInNewUser, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("session closed by sign-out")
	return nil
}

// GetCurrentUser はセッションに紐づくユーザーを返す。
// セッションが無効な場合はErrNoSessionを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrNoSession
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s for session: %w", session.UserID, ErrNoSession)
	}
	return user, nil
}

// createSession はSessionMaxAge秒有効なセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// sessionIDBytes はセッションIDの乱数バイト数（hexで64文字）。
const sessionIDBytes = 32

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
