package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/workdesk/internal/model"
)

// PostgresRecordRepo はPostgreSQLを使用したレコードリポジトリ。
// 全コレクションを1テーブル（records）に格納し、collection列で区別する。
// 取得・削除は常にowner_idで絞り込む。
type PostgresRecordRepo struct {
	db *sql.DB
}

// NewPostgresRecordRepo はPostgresRecordRepoを生成する。
func NewPostgresRecordRepo(db *sql.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

// Create はレコードを作成する。
func (r *PostgresRecordRepo) Create(ctx context.Context, record *model.Record) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO records (id, owner_id, collection, data, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.ID, record.OwnerID, record.Collection, []byte(record.Data), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

// FindByID は所有者のコレクション内の指定IDのレコードを取得する。見つからない場合はnilを返す。
func (r *PostgresRecordRepo) FindByID(ctx context.Context, ownerID, collection, id string) (*model.Record, error) {
	record := &model.Record{}
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, collection, data, created_at
		 FROM records
		 WHERE collection = $1 AND id = $2 AND owner_id = $3`,
		collection, id, ownerID,
	).Scan(&record.ID, &record.OwnerID, &record.Collection, &data, &record.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record: %w", err)
	}

	record.Data = data
	return record, nil
}

// DeleteByID は所有者のコレクション内の指定IDのレコードを削除する。
func (r *PostgresRecordRepo) DeleteByID(ctx context.Context, ownerID, collection, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = $1 AND id = $2 AND owner_id = $3`,
		collection, id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByOwner は所有者の全レコードを削除する。退会時に使用する。
func (r *PostgresRecordRepo) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE owner_id = $1`,
		ownerID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records by owner: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ RecordRepository = (*PostgresRecordRepo)(nil)
