package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/chrbailey/lex-intel/internal/auth"
)

func adminRequest(t *testing.T, s *Server, authorization string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/scrape", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := s.requireAdmin()(func(c echo.Context) error {
		return c.NoContent(http.StatusAccepted)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestRequireAdminRejectsMissingAndWrongTokens(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashToken("trigger-token")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	s := &Server{opts: Options{AdminTokenHash: hash}}

	if rec := adminRequest(t, s, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header should be rejected, got %d", rec.Code)
	}
	if rec := adminRequest(t, s, "Bearer wrong-token"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token should be rejected, got %d", rec.Code)
	}
	if rec := adminRequest(t, s, "trigger-token"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("non-bearer header should be rejected, got %d", rec.Code)
	}
}

func TestRequireAdminAcceptsValidToken(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashToken("trigger-token")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	s := &Server{opts: Options{AdminTokenHash: hash}}

	if rec := adminRequest(t, s, "Bearer trigger-token"); rec.Code != http.StatusAccepted {
		t.Fatalf("valid token should pass, got %d", rec.Code)
	}
}

func TestRequireAdminDisabledWithoutHash(t *testing.T) {
	t.Parallel()

	s := &Server{}
	if rec := adminRequest(t, s, ""); rec.Code != http.StatusAccepted {
		t.Fatalf("empty hash should disable the check, got %d", rec.Code)
	}
}
