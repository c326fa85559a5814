package account

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bot-core/internal/connector"
	"bot-core/pkg/crypto"
	"bot-core/pkg/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	enc, err := crypto.NewEncryptor([]byte("0123456789abcdef0123456789abcdef"), 1)
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	return NewService(st, enc)
}

func TestCreateEncryptsKeys(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Create(ctx, "u1", "main", "binance", connector.ModeLive, "my-key", "my-secret")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acc.APIKey == "my-key" || !strings.HasPrefix(acc.APIKey, "ENC[") {
		t.Errorf("api key not encrypted at rest: %q", acc.APIKey)
	}
	if acc.APISecret == "my-secret" || !strings.HasPrefix(acc.APISecret, "ENC[") {
		t.Errorf("api secret not encrypted at rest: %q", acc.APISecret)
	}

	creds, err := svc.Resolve(ctx, "u1", acc.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.APIKey != "my-key" || creds.APISecret != "my-secret" {
		t.Errorf("resolve did not round-trip keys: %+v", creds)
	}
	if creds.Exchange != "binance" || creds.Mode != connector.ModeLive {
		t.Errorf("unexpected credentials: %+v", creds)
	}
}

func TestDemoAccountNeedsNoKeys(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Create(ctx, "u1", "paper", "binance", connector.ModeDemo, "", "")
	if err != nil {
		t.Fatalf("create demo: %v", err)
	}
	creds, err := svc.Resolve(ctx, "u1", acc.ID)
	if err != nil {
		t.Fatalf("resolve demo: %v", err)
	}
	if creds.Mode != connector.ModeDemo || creds.APIKey != "" {
		t.Errorf("unexpected demo credentials: %+v", creds)
	}
}

func TestLiveAccountRequiresKeys(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Create(context.Background(), "u1", "main", "mexc", connector.ModeLive, "", ""); err == nil {
		t.Fatal("expected error for live account without keys")
	}
}

func TestOwnershipEnforced(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Create(ctx, "u1", "main", "binance", connector.ModeDemo, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, "u2", acc.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Get by other user: got %v, want ErrForbidden", err)
	}
	if _, err := svc.Resolve(ctx, "u2", acc.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Resolve by other user: got %v, want ErrForbidden", err)
	}
	if err := svc.Delete(ctx, "u2", acc.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Delete by other user: got %v, want ErrForbidden", err)
	}
	if _, err := svc.Get(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: got %v, want ErrNotFound", err)
	}
}

func TestListRedactsKeys(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "u1", "main", "binance", connector.ModeLive, "k", "s"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, "u2", "other", "mexc", connector.ModeDemo, "", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	accs, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accs) != 1 {
		t.Fatalf("got %d accounts, want 1", len(accs))
	}
	if accs[0].APIKey != "" || accs[0].APISecret != "" {
		t.Errorf("list leaked key material: %+v", accs[0])
	}
}
