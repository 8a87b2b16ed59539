package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/workdesk/internal/middleware"
	"github.com/hitoshi/workdesk/internal/model"
	"github.com/hitoshi/workdesk/internal/records"
)

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// handleRecordError はrecordsパッケージのセンチネルエラーをAPIエラーに変換する。
func handleRecordError(w http.ResponseWriter, err error, collection, recordID string) {
	switch {
	case errors.Is(err, records.ErrInvalidCollection):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidCollectionError(collection))
	case errors.Is(err, records.ErrRecordNotFound):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewRecordNotFoundError(recordID))
	case errors.Is(err, records.ErrInvalidRecord):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRecordError(err.Error()))
	default:
		handleServiceError(w, err)
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeSessionResolving:
		return http.StatusServiceUnavailable
	case model.ErrCodeInvalidCollection, model.ErrCodeInvalidRecord:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound, model.ErrCodeRecordNotFound:
		return http.StatusNotFound
	case model.ErrCodeCSRF:
		return http.StatusForbidden
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
