package records

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/workdesk/internal/model"
	"github.com/hitoshi/workdesk/internal/repository"
	"github.com/hitoshi/workdesk/internal/security"
)

// --- モック定義 ---

type mockRecordRepo struct {
	createFn        func(ctx context.Context, record *model.Record) error
	findByIDFn      func(ctx context.Context, ownerID, collection, id string) (*model.Record, error)
	deleteByIDFn    func(ctx context.Context, ownerID, collection, id string) (bool, error)
	deleteByOwnerFn func(ctx context.Context, ownerID string) (int64, error)
}

func (m *mockRecordRepo) Create(ctx context.Context, record *model.Record) error {
	if m.createFn != nil {
		return m.createFn(ctx, record)
	}
	return nil
}

func (m *mockRecordRepo) FindByID(ctx context.Context, ownerID, collection, id string) (*model.Record, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, ownerID, collection, id)
	}
	return nil, nil
}

func (m *mockRecordRepo) DeleteByID(ctx context.Context, ownerID, collection, id string) (bool, error) {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, ownerID, collection, id)
	}
	return false, nil
}

func (m *mockRecordRepo) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	if m.deleteByOwnerFn != nil {
		return m.deleteByOwnerFn(ctx, ownerID)
	}
	return 0, nil
}

var _ repository.RecordRepository = (*mockRecordRepo)(nil)

// memoryRepo はowner/collection/idをキーにした最小のインメモリリポジトリ。
type memoryRepo struct {
	data map[string]*model.Record
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{data: make(map[string]*model.Record)}
}

func memKey(owner, collection, id string) string {
	return owner + "/" + collection + "/" + id
}

func (m *memoryRepo) Create(_ context.Context, r *model.Record) error {
	m.data[memKey(r.OwnerID, r.Collection, r.ID)] = r
	return nil
}

func (m *memoryRepo) FindByID(_ context.Context, ownerID, collection, id string) (*model.Record, error) {
	return m.data[memKey(ownerID, collection, id)], nil
}

func (m *memoryRepo) DeleteByID(_ context.Context, ownerID, collection, id string) (bool, error) {
	k := memKey(ownerID, collection, id)
	_, ok := m.data[k]
	delete(m.data, k)
	return ok, nil
}

func (m *memoryRepo) DeleteByOwner(_ context.Context, ownerID string) (int64, error) {
	var n int64
	for k, r := range m.data {
		if r.OwnerID == ownerID {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type opCall struct {
	operation string
	failed    bool
}

type recordingOps struct {
	calls []opCall
}

func (r *recordingOps) RecordRecordOperation(operation string, err error, _ time.Duration) {
	r.calls = append(r.calls, opCall{operation: operation, failed: err != nil})
}

func newTestService(repo repository.RecordRepository) (*Service, *recordingOps) {
	svc := NewService(repo, security.NewRecordSanitizer())
	ops := &recordingOps{}
	svc.SetOperationRecorder(ops)
	return svc, ops
}

const alice = "user-alice"

// --- テスト ---

func TestValidCollection(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"debug_probe", true},
		{"a", true},
		{"notes2", true},
		{"", false},
		{"Debug", false},
		{"1notes", false},
		{"_notes", false},
		{"notes-2", false},
		{"notes.2", false},
		{"a" + strings.Repeat("b", 62), true},  // 63文字
		{"a" + strings.Repeat("b", 63), false}, // 64文字
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidCollection(tt.name); got != tt.want {
				t.Errorf("ValidCollection(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestCreate_SanitizesAndPersists(t *testing.T) {
	var saved *model.Record
	svc, ops := newTestService(&mockRecordRepo{
		createFn: func(ctx context.Context, record *model.Record) error {
			saved = record
			return nil
		},
	})

	record, err := svc.Create(context.Background(), alice, "debug_probe", json.RawMessage(`{"note":"<b>hi</b>"}`))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if saved == nil {
		t.Fatal("expected record to be persisted")
	}
	if len(record.ID) != IDLength {
		t.Errorf("ID length = %d, want %d", len(record.ID), IDLength)
	}
	if saved.OwnerID != alice {
		t.Errorf("OwnerID = %q, want %q", saved.OwnerID, alice)
	}
	if record.Collection != "debug_probe" {
		t.Errorf("Collection = %q, want %q", record.Collection, "debug_probe")
	}
	if string(saved.Data) != `{"note":"hi"}` {
		t.Errorf("Data = %s, want %s", saved.Data, `{"note":"hi"}`)
	}
	if record.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if len(ops.calls) != 1 || ops.calls[0] != (opCall{"create", false}) {
		t.Errorf("ops = %+v", ops.calls)
	}
}

// 作成したテキストはマークアップを除いてそのまま読み戻せること
func TestCreateThenGet_PreservesPlainText(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	want := map[string]string{
		"title": "Tom & Jerry",
		"note":  "a < b",
		"q":     "it's",
	}
	body, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}

	created, err := svc.Create(context.Background(), alice, "notes", body)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := svc.Get(context.Background(), alice, "notes", created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	var data map[string]string
	if err := json.Unmarshal(got.Data, &data); err != nil {
		t.Fatalf("failed to decode stored data %s: %v", got.Data, err)
	}
	for k, v := range want {
		if data[k] != v {
			t.Errorf("%s = %q, want %q", k, data[k], v)
		}
	}
}

func TestCreate_UniqueIDs(t *testing.T) {
	svc, _ := newTestService(&mockRecordRepo{})

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		record, err := svc.Create(context.Background(), alice, "notes", json.RawMessage(`{}`))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if seen[record.ID] {
			t.Fatalf("duplicate ID %q", record.ID)
		}
		seen[record.ID] = true
	}
}

func TestCreate_InvalidInput_DoesNotPersist(t *testing.T) {
	tests := []struct {
		name       string
		owner      string
		collection string
		wantErr    error
	}{
		{"bad collection", alice, "Bad Name", ErrInvalidCollection},
		{"missing owner", "", "notes", ErrOwnerRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(&mockRecordRepo{
				createFn: func(ctx context.Context, record *model.Record) error {
					t.Fatal("repository should not be called")
					return nil
				},
			})

			_, err := svc.Create(context.Background(), tt.owner, tt.collection, json.RawMessage(`{}`))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreate_NonObjectPayload_ReturnsInvalidRecord(t *testing.T) {
	svc, _ := newTestService(&mockRecordRepo{})

	for _, in := range []string{`[1,2]`, `"x"`, `{`} {
		t.Run(in, func(t *testing.T) {
			_, err := svc.Create(context.Background(), alice, "notes", json.RawMessage(in))
			if !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("err = %v, want %v", err, ErrInvalidRecord)
			}
		})
	}
}

func TestCreate_RepositoryError_IsWrappedAndRecorded(t *testing.T) {
	dbErr := errors.New("connection reset")
	svc, ops := newTestService(&mockRecordRepo{
		createFn: func(ctx context.Context, record *model.Record) error {
			return dbErr
		},
	})

	_, err := svc.Create(context.Background(), alice, "notes", json.RawMessage(`{}`))
	if !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want wrapped %v", err, dbErr)
	}
	if len(ops.calls) != 1 || !ops.calls[0].failed {
		t.Errorf("ops = %+v, want one failed create", ops.calls)
	}
}

func TestGet(t *testing.T) {
	stored := &model.Record{ID: "rec-1", OwnerID: alice, Collection: "notes", Data: json.RawMessage(`{"a":1}`)}
	svc, ops := newTestService(&mockRecordRepo{
		findByIDFn: func(ctx context.Context, ownerID, collection, id string) (*model.Record, error) {
			if ownerID == alice && collection == "notes" && id == "rec-1" {
				return stored, nil
			}
			return nil, nil
		},
	})

	got, err := svc.Get(context.Background(), alice, "notes", "rec-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != stored {
		t.Errorf("Get() = %+v, want %+v", got, stored)
	}

	_, err = svc.Get(context.Background(), alice, "notes", "missing")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("err = %v, want %v", err, ErrRecordNotFound)
	}

	// 未検出は失敗として記録しない
	for _, c := range ops.calls {
		if c.failed {
			t.Errorf("unexpected failed op: %+v", c)
		}
	}
}

func TestGetAndDelete_OtherOwner_NotFound(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())

	created, err := svc.Create(context.Background(), alice, "notes", json.RawMessage(`{"secret":"x"}`))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.Get(context.Background(), "user-bob", "notes", created.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Get by other owner: err = %v, want %v", err, ErrRecordNotFound)
	}
	if err := svc.Delete(context.Background(), "user-bob", "notes", created.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Delete by other owner: err = %v, want %v", err, ErrRecordNotFound)
	}

	// 所有者からは引き続き見える
	if _, err := svc.Get(context.Background(), alice, "notes", created.ID); err != nil {
		t.Errorf("Get by owner: unexpected error %v", err)
	}
}

func TestGet_InvalidCollection(t *testing.T) {
	svc, _ := newTestService(&mockRecordRepo{})

	if _, err := svc.Get(context.Background(), alice, "../etc", "rec-1"); !errors.Is(err, ErrInvalidCollection) {
		t.Errorf("err = %v, want %v", err, ErrInvalidCollection)
	}
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name    string
		deleted bool
		repoErr error
		wantErr error
	}{
		{"deleted", true, nil, nil},
		{"missing", false, nil, ErrRecordNotFound},
		{"db error", false, errors.New("db down"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(&mockRecordRepo{
				deleteByIDFn: func(ctx context.Context, ownerID, collection, id string) (bool, error) {
					if ownerID != alice {
						t.Errorf("ownerID = %q, want %q", ownerID, alice)
					}
					return tt.deleted, tt.repoErr
				},
			})

			err := svc.Delete(context.Background(), alice, "notes", "rec-1")
			switch {
			case tt.repoErr != nil:
				if !errors.Is(err, tt.repoErr) {
					t.Errorf("err = %v, want wrapped %v", err, tt.repoErr)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}
