// Package debugprobe はレコードストアを直接操作する手動確認用のプローブを提供する。
// 作成→取得→削除→削除確認の順に実行し、各ステップの結果を報告する。
package debugprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/workdesk/internal/records"
)

// DefaultCollection はプローブが使用するデフォルトのコレクション名。
const DefaultCollection = "debug_probe"

// Owner はプローブが作成するレコードの所有者ID。実在のユーザーIDとは衝突しない。
const Owner = "debug-probe"

// Step はプローブの1ステップの結果。
type Step struct {
	Name     string        `json:"name"`
	OK       bool          `json:"ok"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Report はプローブ全体の結果。
type Report struct {
	Collection string `json:"collection"`
	RecordID   string `json:"record_id,omitempty"`
	Steps      []Step `json:"steps"`
}

// OK は全ステップが成功したかを返す。
func (r *Report) OK() bool {
	if len(r.Steps) == 0 {
		return false
	}
	for _, s := range r.Steps {
		if !s.OK {
			return false
		}
	}
	return true
}

// ErrProbeFailed はいずれかのステップが失敗した場合に返すエラー。
var ErrProbeFailed = errors.New("debug probe failed")

// Run はstoreに対してプローブを実行する。
// 失敗したステップ以降は実行せず、それまでのReportとErrProbeFailedを返す。
// 作成済みのレコードは途中で失敗しても削除を試みる。
func Run(ctx context.Context, store records.Store, collection string, logger *slog.Logger) (*Report, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if logger == nil {
		logger = slog.Default()
	}

	report := &Report{Collection: collection}
	payload, err := json.Marshal(map[string]string{
		"probe":      "workdesk debug",
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return report, fmt.Errorf("failed to build probe payload: %w", err)
	}

	// 1. 作成
	var created string
	if !runStep(report, logger, "create", func() error {
		record, err := store.Create(ctx, Owner, collection, payload)
		if err != nil {
			return err
		}
		created = record.ID
		report.RecordID = record.ID
		return nil
	}) {
		return report, ErrProbeFailed
	}

	// 2. 取得（作成した内容が読めること）
	readOK := runStep(report, logger, "read", func() error {
		record, err := store.Get(ctx, Owner, collection, created)
		if err != nil {
			return err
		}
		if record.ID != created {
			return fmt.Errorf("read back id %q, want %q", record.ID, created)
		}
		return nil
	})

	// 3. 削除（取得に失敗しても後始末として実行する）
	deleteOK := runStep(report, logger, "delete", func() error {
		return store.Delete(ctx, Owner, collection, created)
	})
	if !readOK || !deleteOK {
		return report, ErrProbeFailed
	}

	// 4. 削除確認
	if !runStep(report, logger, "verify_deleted", func() error {
		_, err := store.Get(ctx, Owner, collection, created)
		if errors.Is(err, records.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("record %q still exists after delete", created)
	}) {
		return report, ErrProbeFailed
	}

	return report, nil
}

func runStep(report *Report, logger *slog.Logger, name string, fn func() error) bool {
	start := time.Now()
	err := fn()
	step := Step{Name: name, OK: err == nil, Duration: time.Since(start)}

	if err != nil {
		step.Error = err.Error()
		logger.Error("debug probe step failed",
			slog.String("step", name),
			slog.String("collection", report.Collection),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("debug probe step ok",
			slog.String("step", name),
			slog.String("collection", report.Collection),
			slog.String("record_id", report.RecordID),
			slog.Duration("duration", step.Duration),
		)
	}

	report.Steps = append(report.Steps, step)
	return step.OK
}
