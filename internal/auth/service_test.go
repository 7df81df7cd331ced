package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vr-gallery/internal/database"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := NewService(db, []byte("test-secret"), time.Hour)
	svc.hashCost = bcrypt.MinCost
	return svc
}

func TestService_Register(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		if err := svc.Register(ctx, "user@example.com", "secret123"); err != nil {
			t.Fatalf("Register: %v", err)
		}
	})

	t.Run("duplicate_email", func(t *testing.T) {
		err := svc.Register(ctx, "user@example.com", "othersecret")
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("invalid_email", func(t *testing.T) {
		err := svc.Register(ctx, "not-an-email", "secret123")
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("short_password", func(t *testing.T) {
		err := svc.Register(ctx, "short@example.com", "abc")
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestService_Login(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "user@example.com", "secret123"); err != nil {
		t.Fatalf("setup register: %v", err)
	}

	t.Run("success_and_parse", func(t *testing.T) {
		token, err := svc.Login(ctx, "user@example.com", "secret123")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}

		claims, err := svc.ParseToken(token)
		if err != nil {
			t.Fatalf("ParseToken: %v", err)
		}
		if claims.Email != "user@example.com" {
			t.Errorf("claims email: %q", claims.Email)
		}
		if id, err := claims.UserID(); err != nil || id <= 0 {
			t.Errorf("claims user id: %d, %v", id, err)
		}
	})

	t.Run("wrong_password", func(t *testing.T) {
		_, err := svc.Login(ctx, "user@example.com", "wrong")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown_email", func(t *testing.T) {
		_, err := svc.Login(ctx, "ghost@example.com", "secret123")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestService_ParseToken_rejects_garbage(t *testing.T) {
	svc := newTestService(t)

	for _, tok := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		if _, err := svc.ParseToken(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestService_ParseToken_rejects_foreign_secret(t *testing.T) {
	svc := newTestService(t)
	other := newTestService(t)
	ctx := context.Background()

	if err := other.Register(ctx, "user@example.com", "secret123"); err != nil {
		t.Fatal(err)
	}
	token, err := other.Login(ctx, "user@example.com", "secret123")
	if err != nil {
		t.Fatal(err)
	}

	// Same claims, different signing key.
	other.secret = []byte("different")
	token2, err := other.Login(ctx, "user@example.com", "secret123")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ParseToken(token2); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
	_ = token
}

func TestService_expired_token(t *testing.T) {
	svc := newTestService(t)
	svc.ttl = -time.Minute
	ctx := context.Background()

	if err := svc.Register(ctx, "user@example.com", "secret123"); err != nil {
		t.Fatal(err)
	}
	token, err := svc.Login(ctx, "user@example.com", "secret123")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}
