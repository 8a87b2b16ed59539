package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type requestNoteKey struct{}

// requestNote はアクセスログ用に内側のハンドラーから書き戻される値。
// ゲートはログより内側で派生リクエストを作るため、コンテキスト経由では外側に届かない。
type requestNote struct {
	userID string
}

func noteUserID(ctx context.Context, userID string) {
	if n, ok := ctx.Value(requestNoteKey{}).(*requestNote); ok {
		n.userID = userID
	}
}

// NewLoggingMiddleware は1リクエスト1行のアクセスログを出すミドルウェアを返す。
// method, path, status, bytes, duration_ms に加え、request_id と user_id を分かる範囲で付ける。
// 5xxはError、4xxはWarnで出す。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			note := &requestNote{}

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestNoteKey{}, note)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if note.userID != "" {
				attrs = append(attrs, slog.String("user_id", note.userID))
			}

			logger.LogAttrs(r.Context(), accessLogLevel(status), "http_request", attrs...)
		})
	}
}

func accessLogLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
