package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/workdesk/internal/gate"
	"github.com/hitoshi/workdesk/internal/middleware"
)

func newTestRouter(session gate.Session, metrics http.Handler) http.Handler {
	provider := &staticProvider{session: session}
	return NewRouter(&RouterDeps{
		Gate:            gate.New(provider, gate.DefaultReturnPath),
		SessionProvider: provider,
		RateLimiter:     middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig()),
		AuthService:     &mockAuthService{},
		UserService:     &mockUserService{},
		RecordStore:     &mockRecordStore{},
		Metrics:         metrics,
	})
}

func TestNewRouter_PublicRoutes(t *testing.T) {
	router := newTestRouter(gate.Session{IsLoaded: true}, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"session", http.MethodGet, "/auth/session", http.StatusOK},
		{"login", http.MethodGet, "/auth/google/login", http.StatusTemporaryRedirect},
		{"root", http.MethodGet, "/", http.StatusFound},
		{"metrics disabled", http.MethodGet, "/metrics", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_Root_RedirectsToReturnPath(t *testing.T) {
	router := newTestRouter(gate.Session{IsLoaded: true}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if loc := w.Header().Get("Location"); loc != "/chat" {
		t.Errorf("Location = %q, want %q", loc, "/chat")
	}
}

func TestNewRouter_ProtectedPages_FollowGateDecision(t *testing.T) {
	tests := []struct {
		name       string
		session    gate.Session
		wantStatus int
	}{
		{"resolving", gate.Session{}, http.StatusOK},
		{"unauthenticated", gate.Session{IsLoaded: true}, http.StatusTemporaryRedirect},
		{"authenticated", gate.Session{IsLoaded: true, IsSignedIn: true, UserID: "u1"}, http.StatusOK},
	}

	for _, tt := range tests {
		for _, path := range []string{"/chat", "/dashboard"} {
			t.Run(tt.name+path, func(t *testing.T) {
				router := newTestRouter(tt.session, nil)

				w := httptest.NewRecorder()
				router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

				if w.Code != tt.wantStatus {
					t.Errorf("GET %s status = %d, want %d", path, w.Code, tt.wantStatus)
				}
			})
		}
	}
}

func TestNewRouter_SetsCommonHeaders(t *testing.T) {
	router := newTestRouter(gate.Session{IsLoaded: true}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on every route")
	}
}

func TestNewRouter_MetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("workdesk_up 1\n"))
	})
	router := newTestRouter(gate.Session{IsLoaded: true}, metrics)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want %d", w.Code, http.StatusOK)
	}
}

// 転送系ヘッダーを変えてもサインインのレート制限キーは接続元アドレスのまま
func TestNewRouter_SignInRateLimit_IgnoresForwardedHeaders(t *testing.T) {
	provider := &staticProvider{session: gate.Session{IsLoaded: true}}
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(120, 1))
	defer limiter.Stop()

	router := NewRouter(&RouterDeps{
		Gate:            gate.New(provider, gate.DefaultReturnPath),
		SessionProvider: provider,
		RateLimiter:     limiter,
		AuthService:     &mockAuthService{},
		UserService:     &mockUserService{},
		RecordStore:     &mockRecordStore{},
	})

	spoofed := []string{"203.0.113.1", "203.0.113.2", "203.0.113.3", "203.0.113.4", "203.0.113.5"}
	var codes []int
	for _, ip := range spoofed {
		req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
		req.RemoteAddr = "198.51.100.7:40000"
		req.Header.Set("X-Forwarded-For", ip)
		req.Header.Set("X-Real-IP", ip)
		req.Header.Set("True-Client-IP", ip)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusTemporaryRedirect {
		t.Fatalf("first login status = %d, want %d", codes[0], http.StatusTemporaryRedirect)
	}
	for i, code := range codes[1:] {
		if code != http.StatusTooManyRequests {
			t.Errorf("login %d status = %d, want %d (all codes %v)", i+2, code, http.StatusTooManyRequests, codes)
		}
	}
}
