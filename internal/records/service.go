// Package records は名前付きコレクションに格納するJSONレコードのドメインロジックを提供する。
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/hitoshi/workdesk/internal/model"
	"github.com/hitoshi/workdesk/internal/repository"
	"github.com/hitoshi/workdesk/internal/security"
)

var (
	// ErrInvalidCollection はコレクション名が命名規則に合わない場合のエラー。
	ErrInvalidCollection = errors.New("invalid collection name")
	// ErrRecordNotFound は指定IDのレコードが存在しない場合のエラー。
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidRecord はレコード本文がJSONオブジェクトでない場合のエラー。
	ErrInvalidRecord = errors.New("invalid record payload")
	// ErrOwnerRequired は所有者IDが指定されていない場合のエラー。
	ErrOwnerRequired = errors.New("record owner is required")
)

// IDLength はレコードIDの文字数。
const IDLength = 21

// 英小文字で始まり、英小文字・数字・アンダースコアのみの63文字以内
var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidCollection はコレクション名が命名規則に合うかを返す。
func ValidCollection(name string) bool {
	return collectionPattern.MatchString(name)
}

// Store はレコードの作成・取得・削除を行うインターフェース。
// debugprobeやHTTPハンドラーから利用する。
// 全操作は所有者（ownerID）の範囲に限られ、他の所有者のレコードは存在しないものとして扱う。
type Store interface {
	Create(ctx context.Context, ownerID, collection string, data json.RawMessage) (*model.Record, error)
	Get(ctx context.Context, ownerID, collection, id string) (*model.Record, error)
	Delete(ctx context.Context, ownerID, collection, id string) error
}

// OperationRecorder はレコード操作の結果を観測する。
type OperationRecorder interface {
	RecordRecordOperation(operation string, err error, duration time.Duration)
}

// Service はレコード管理のサービス層。
type Service struct {
	repo      repository.RecordRepository
	sanitizer security.RecordSanitizer
	recorder  OperationRecorder
	newID     func() (string, error)
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.RecordRepository, sanitizer security.RecordSanitizer) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		newID:     func() (string, error) { return gonanoid.New(IDLength) },
		now:       time.Now,
	}
}

// SetOperationRecorder はレコード操作の記録先を設定する。
func (s *Service) SetOperationRecorder(rec OperationRecorder) {
	s.recorder = rec
}

// validate は所有者とコレクション名を検証する。
func validate(ownerID, collection string) error {
	if ownerID == "" {
		return ErrOwnerRequired
	}
	if !ValidCollection(collection) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	return nil
}

// Create はコレクションに新しいレコードを作成する。
// 本文の文字列値はサニタイズしてから保存する。
func (s *Service) Create(ctx context.Context, ownerID, collection string, data json.RawMessage) (record *model.Record, err error) {
	defer s.observe("create", time.Now(), &err)

	if err := validate(ownerID, collection); err != nil {
		return nil, err
	}

	clean, err := s.sanitizer.SanitizeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("レコードIDの生成に失敗しました: %w", err)
	}

	record = &model.Record{
		ID:         id,
		OwnerID:    ownerID,
		Collection: collection,
		Data:       clean,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("レコードの作成に失敗しました: %w", err)
	}

	return record, nil
}

// Get はコレクション内の指定IDのレコードを返す。
func (s *Service) Get(ctx context.Context, ownerID, collection, id string) (record *model.Record, err error) {
	defer s.observe("read", time.Now(), &err)

	if err := validate(ownerID, collection); err != nil {
		return nil, err
	}

	record, err = s.repo.FindByID(ctx, ownerID, collection, id)
	if err != nil {
		return nil, fmt.Errorf("レコードの取得に失敗しました: %w", err)
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}

	return record, nil
}

// Delete はコレクション内の指定IDのレコードを削除する。
// 対象が存在しない場合はErrRecordNotFoundを返す。
func (s *Service) Delete(ctx context.Context, ownerID, collection, id string) (err error) {
	defer s.observe("delete", time.Now(), &err)

	if err := validate(ownerID, collection); err != nil {
		return err
	}

	deleted, err := s.repo.DeleteByID(ctx, ownerID, collection, id)
	if err != nil {
		return fmt.Errorf("レコードの削除に失敗しました: %w", err)
	}
	if !deleted {
		return ErrRecordNotFound
	}

	return nil
}

// observe は操作結果を記録する。見つからないことは操作の失敗として扱わない。
func (s *Service) observe(operation string, start time.Time, errp *error) {
	if s.recorder == nil {
		return
	}
	err := *errp
	if errors.Is(err, ErrRecordNotFound) {
		err = nil
	}
	s.recorder.RecordRecordOperation(operation, err, time.Since(start))
}

var _ Store = (*Service)(nil)
