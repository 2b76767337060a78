package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)

	ctx := context.Background()
	user, err := svc.Register(ctx, Credentials{Phone: "+237650000000", PIN: "1234"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if string(user.PINHash) == "1234" {
		t.Fatal("PIN stored in clear")
	}

	authed, err := svc.Authenticate(ctx, Credentials{Phone: user.Phone, PIN: "1234"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID || authed.LastLogin == nil {
		t.Fatalf("unexpected user %+v", authed)
	}
}

func TestAuthenticateRejectsWrongPIN(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Phone: "123", PIN: "1234"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Phone: "123", PIN: "9999"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Phone: "404", PIN: "1234"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown phone, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Phone: "123", PIN: "12a4"}); err == nil {
		t.Fatal("expected PIN validation error")
	}
	if _, err := svc.Register(ctx, Credentials{Phone: "123", PIN: "1234"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Credentials{Phone: "123", PIN: "5678"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected duplicate phone error, got %v", err)
	}
}
