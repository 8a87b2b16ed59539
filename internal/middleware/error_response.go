package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/workdesk/internal/model"
)

// ErrorResponseBody はAPIエラーのJSON表現。ゲート・ミドルウェア・ハンドラーで共通。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func errorBody(e *model.APIError) ErrorResponseBody {
	return ErrorResponseBody{Code: e.Code, Message: e.Message, Category: e.Category, Action: e.Action}
}

// WriteErrorResponse はapiErrをstatusCodeで書き込む。エラー応答はキャッシュさせない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSONBody(w, statusCode, errorBody(apiErr))
}

// WriteInternalServerError は詳細を伏せた500を返す。原因は呼び出し側でログに残すこと。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

func writeJSONBody(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write JSON response",
			slog.Int("status", statusCode),
			slog.String("error", err.Error()),
		)
	}
}
