package services

import (
	"context"
	"errors"
	"testing"

	"github.com/soaringjerry/Pollen/internal/docstore"
	"github.com/soaringjerry/Pollen/internal/identity"
)

func fakeSigner(id identity.Identity) (string, error) {
	return "tok-" + id.UserID, nil
}

func newTestAccounts(t *testing.T) (*AccountService, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	svc := NewAccountService(store, "app", fakeSigner)
	n := 0
	svc.idGen = func() string {
		n++
		return "user" + string(rune('0'+n))
	}
	return svc, store
}

func TestAccountSignInAnonymously(t *testing.T) {
	svc, _ := newTestAccounts(t)
	res, err := svc.SignInAnonymously(context.Background())
	if err != nil {
		t.Fatalf("SignInAnonymously returned error: %v", err)
	}
	if !res.Identity.IsAnonymous || res.Identity.UserID != "user1" || res.Token != "tok-user1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAccountRegisterAndLogin(t *testing.T) {
	svc, store := newTestAccounts(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, " Ada@Example.com ", "s3cret", "Ada")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if reg.Identity.IsAnonymous || reg.Identity.DisplayName != "Ada" {
		t.Fatalf("unexpected identity %+v", reg.Identity)
	}
	snap, _ := store.Read(ctx, AccountsCollection("app")+"/ada@example.com")
	if !snap.Exists || snap.Data["passHash"] == "s3cret" {
		t.Fatalf("account not stored with hashed password: %+v", snap.Data)
	}

	if _, err := svc.Register(ctx, "ada@example.com", "other", ""); !HasCode(err, ErrorConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	login, err := svc.Login(ctx, "ADA@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if login.Identity.UserID != reg.Identity.UserID {
		t.Fatalf("login user = %q, want %q", login.Identity.UserID, reg.Identity.UserID)
	}
	if _, err := svc.Login(ctx, "ada@example.com", "wrong"); !HasCode(err, ErrorUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "s3cret"); !HasCode(err, ErrorUnauthorized) {
		t.Fatalf("expected unauthorized for unknown email, got %v", err)
	}
}

func TestAccountRejectsBadInput(t *testing.T) {
	svc, _ := newTestAccounts(t)
	ctx := context.Background()
	for _, email := range []string{"", "no-at-sign", "a/b@example.com"} {
		if _, err := svc.Register(ctx, email, "pw", ""); !HasCode(err, ErrorInvalid) {
			t.Fatalf("Register(%q): expected invalid, got %v", email, err)
		}
	}
	if _, err := svc.Register(ctx, "a@example.com", "  ", ""); !HasCode(err, ErrorInvalid) {
		t.Fatalf("expected invalid for blank password, got %v", err)
	}
}

func TestAccountSignerFailure(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	svc := NewAccountService(store, "app", func(identity.Identity) (string, error) {
		return "", errors.New("no key")
	})
	if _, err := svc.SignInAnonymously(context.Background()); err == nil {
		t.Fatalf("expected signer error")
	}
}
