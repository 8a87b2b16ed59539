package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/workdesk/internal/middleware"
	"github.com/hitoshi/workdesk/internal/model"
	"github.com/hitoshi/workdesk/internal/records"
)

// maxRecordBodySize はレコード本文の上限サイズ。
const maxRecordBodySize = 1 << 20

// RecordHandler はレコード管理のHTTPハンドラー。
type RecordHandler struct {
	store records.Store
}

// NewRecordHandler はRecordHandlerを生成する。
func NewRecordHandler(store records.Store) *RecordHandler {
	return &RecordHandler{store: store}
}

// recordResponse はレコードのAPIレスポンス。
type recordResponse struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
}

func toRecordResponse(rec *model.Record) recordResponse {
	return recordResponse{
		ID:         rec.ID,
		Collection: rec.Collection,
		Data:       rec.Data,
		CreatedAt:  rec.CreatedAt,
	}
}

// ownerFromRequest はゲートが注入したユーザーIDをレコードの所有者として返す。
// 取得できない場合は401を書き込み、falseを返す。
func ownerFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// Create はレコードを作成する。
// POST /api/records/{collection}
func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}
	collection := chi.URLParam(r, "collection")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewInvalidRecordError("body too large"))
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRecordError("unreadable body"))
		return
	}

	rec, err := h.store.Create(r.Context(), owner, collection, json.RawMessage(body))
	if err != nil {
		handleRecordError(w, err, collection, "")
		return
	}

	writeJSON(w, http.StatusCreated, toRecordResponse(rec))
}

// Get はレコードを取得する。
// GET /api/records/{collection}/{id}
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	rec, err := h.store.Get(r.Context(), owner, collection, id)
	if err != nil {
		handleRecordError(w, err, collection, id)
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

// Delete はレコードを削除する。
// DELETE /api/records/{collection}/{id}
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	if err := h.store.Delete(r.Context(), owner, collection, id); err != nil {
		handleRecordError(w, err, collection, id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
