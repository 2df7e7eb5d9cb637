package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerateAndParseToken(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, expires, err := m.GenerateToken("7", "ops", RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Errorf("expiry %s is in the past", expires)
	}

	claims, err := m.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != "7" || claims.Username != "ops" || claims.Role != RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	token, _, err := NewJWTManager("a", time.Hour).GenerateToken("1", "x", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewJWTManager("b", time.Hour).ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", -time.Minute)
	token, _, err := m.GenerateToken("1", "x", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ParseToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestMiddlewareChain(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	admin, _, _ := m.GenerateToken("1", "ops", RoleAdmin)
	other, _, _ := m.GenerateToken("2", "viewer", Role("VIEWER"))

	var seen *AppClaims
	h := m.AuthMiddleware(RequireRole(RoleAdmin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetClaims(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"wrong role", "Bearer " + other, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/buses", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if seen == nil || seen.UserID != "1" {
		t.Errorf("handler claims = %+v", seen)
	}
}
