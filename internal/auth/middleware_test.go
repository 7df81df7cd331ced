package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "user@example.com", "secret123"); err != nil {
		t.Fatal(err)
	}
	token, err := svc.Login(ctx, "user@example.com", "secret123")
	if err != nil {
		t.Fatal(err)
	}

	var gotClaims *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := svc.Middleware(next)

	t.Run("valid_token", func(t *testing.T) {
		gotClaims = nil
		req := httptest.NewRequest(http.MethodGet, "/videos", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if gotClaims == nil || gotClaims.Email != "user@example.com" {
			t.Errorf("claims not propagated: %+v", gotClaims)
		}
	})

	for name, header := range map[string]string{
		"missing_header": "",
		"no_bearer":      token,
		"empty_token":    "Bearer ",
		"bad_token":      "Bearer not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			gotClaims = nil
			req := httptest.NewRequest(http.MethodGet, "/videos", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if gotClaims != nil {
				t.Error("next handler ran without valid token")
			}
		})
	}
}
