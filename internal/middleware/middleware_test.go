package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/topicrelay/backend/internal/logging"
	"github.com/topicrelay/backend/internal/services"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header      string
		wantToken   string
		wantPresent bool
		wantOK      bool
	}{
		{"", "", false, false},
		{"Bearer abc", "abc", true, true},
		{"bearer abc", "", true, false},
		{"Bearer", "", true, false},
		{"Bearer a b", "", true, false},
		{"Basic abc", "", true, false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		token, present, ok := BearerToken(req)
		if token != tt.wantToken || present != tt.wantPresent || ok != tt.wantOK {
			t.Errorf("BearerToken(%q) = (%q, %v, %v), want (%q, %v, %v)",
				tt.header, token, present, ok, tt.wantToken, tt.wantPresent, tt.wantOK)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	authService := services.NewAuthService("test-secret", time.Hour)
	token, err := authService.GenerateToken("alice", "s1")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	var seen *services.Claims
	handler := AuthMiddleware(authService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + token, http.StatusUnauthorized},
		{"bad token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusOK && (seen == nil || seen.Subject != "alice") {
				t.Errorf("claims in context = %+v", seen)
			}
		})
	}
}

func TestUpdateRequestContextMiddleware(t *testing.T) {
	claims := &services.Claims{SessionID: "s1"}
	claims.Subject = "alice"

	var attrs *logging.RequestAttrs
	handler := RequestContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(context.WithValue(r.Context(), ClaimsKey, claims))
		UpdateRequestContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attrs = logging.GetRequestAttrs(r.Context())
		})).ServeHTTP(w, r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if attrs == nil {
		t.Fatal("request attrs missing")
	}
	if attrs.Path != "/api/stats" || attrs.SessionID != "s1" || attrs.Subject != "alice" {
		t.Errorf("attrs = %+v", attrs)
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware([]string{"https://app.example"})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	req.Header.Set("Origin", "https://app.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/config", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for unknown origin = %q, want empty", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/auth/token", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rr.Code)
	}
}

func TestOriginAllowed(t *testing.T) {
	if !OriginAllowed(nil)("https://any.example") {
		t.Error("empty list should allow all origins")
	}
	if !OriginAllowed([]string{"*"})("https://any.example") {
		t.Error("wildcard should allow all origins")
	}
	allowed := OriginAllowed([]string{"https://a.example"})
	if !allowed("https://a.example") || allowed("https://b.example") {
		t.Error("explicit list not enforced")
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := NewRateLimiter(ctx, 2).Middleware(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	req.RemoteAddr = "198.51.100.1:5000"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rr.Code)
	}
}

func TestRateLimiter_Evict(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 10)
	rl.getVisitor("203.0.113.7")
	rl.evict(time.Now().Add(visitorTTL + time.Second))

	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("visitors = %d after eviction, want 0", n)
	}
}

func TestRealIPMiddleware(t *testing.T) {
	m := NewRealIPMiddleware([]string{"10.0.0.0/8", "192.168.1.1", "garbage"})

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"direct client", "203.0.113.7:1234", nil, "203.0.113.7"},
		{"untrusted forwarder ignored", "203.0.113.7:1234", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "1.2.3.4"}, "203.0.113.7"},
		{"trusted cidr xff", "10.1.2.3:1234", map[string]string{"X-Forwarded-For": "198.51.100.9, 10.1.2.3"}, "198.51.100.9"},
		{"trusted ip cloudflare", "192.168.1.1:1234", map[string]string{"CF-Connecting-IP": "198.51.100.10", "X-Forwarded-For": "1.1.1.1"}, "198.51.100.10"},
		{"trusted without headers", "10.0.0.1:1234", nil, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("X-Real-IP")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("X-Real-IP = %q, want %q", got, tt.want)
			}
		})
	}
}
