package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"BEARER abc", "abc"},
		{"Basic dXNlcg==", ""},
		{"Bearer", ""},
		{"Bearer  spaced ", "spaced"},
	}
	for _, tc := range cases {
		if got := bearerToken(tc.header); got != tc.want {
			t.Fatalf("bearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newService(t)
	tok, err := svc.Generate(context.Background(), "test", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	g := gin.New()
	g.Use(Middleware(svc))
	g.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	do := func(authHeader string) int {
		req := httptest.NewRequest("GET", "/ping", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(""); code != http.StatusUnauthorized {
		t.Fatalf("no header: %d", code)
	}
	if code := do("Bearer wrong"); code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", code)
	}
	if code := do("Bearer " + tok.Value); code != http.StatusOK {
		t.Fatalf("valid token: %d", code)
	}

	if _, err := svc.Revoke(context.Background(), tok.Value); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if code := do("Bearer " + tok.Value); code != http.StatusUnauthorized {
		t.Fatalf("revoked token: %d", code)
	}
}
