package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/workdesk/internal/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

// DashboardPanels はダッシュボードに配置するパネルのマウントポイント。
// パネルの中身はフロントエンド側で描画する。
var DashboardPanels = []string{
	"activity",
	"pinned",
	"tasks",
	"platforms",
	"projects",
	"recommendations",
}

var (
	chatPage      = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/chat.html"))
	dashboardPage = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/dashboard.html"))
)

// pageData はページシェルの描画に渡すデータ。
type pageData struct {
	Title  string
	Active string
	UserID string
	Panels []string
}

// PageHandler はゲート配下のページシェルを返すハンドラー。
// チャットやドキュメント管理などの実体はマウントポイントのみを提供する。
type PageHandler struct{}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler() *PageHandler {
	return &PageHandler{}
}

// Chat はワークスペースページを返す。
// GET /chat
func (h *PageHandler) Chat(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, chatPage, pageData{Title: "Workspace", Active: "chat"})
}

// Dashboard は従業員ダッシュボードを返す。
// GET /dashboard
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, dashboardPage, pageData{Title: "Dashboard", Active: "dashboard", Panels: DashboardPanels})
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, tmpl *template.Template, data pageData) {
	// ゲート通過後なのでユーザーIDは必ず存在する
	data.UserID, _ = middleware.UserIDFromContext(r.Context())

	// 途中で失敗した場合に部分的なHTMLを返さないよう、バッファに描画してから書き込む
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", data.Active),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("failed to write page",
			slog.String("page", data.Active),
			slog.String("error", err.Error()),
		)
	}
}
