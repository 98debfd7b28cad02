package services

import (
	"errors"
	"testing"
	"time"

	"neuro/internal/database"
	"neuro/pkg/auth"
)

func newTestAccountService(t *testing.T) *AccountService {
	t.Helper()

	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	jwtAuth, err := auth.NewLocalJWTAuth("test-secret-key-for-account-service", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("failed to create jwt auth: %v", err)
	}

	return NewAccountService(db, jwtAuth, nil)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestAccountService(t)

	account, pair, err := svc.Register("  Ada@Example.COM ", "Str0ng!pass", "Ada Lovelace")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if account.Email != "ada@example.com" {
		t.Errorf("email not normalized: %q", account.Email)
	}
	if account.UID == "" || pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("expected uid and a full token pair")
	}
	if account.LastLoginAt != nil {
		t.Error("fresh account should have no last login")
	}
	if account.Role != "admin" {
		t.Errorf("first account role = %q, want admin", account.Role)
	}

	if _, _, err := svc.Register("ada@example.com", "Str0ng!pass", "Ada"); !errors.Is(err, ErrAccountExists) {
		t.Errorf("duplicate register: got %v, want ErrAccountExists", err)
	}

	second, _, err := svc.Register("bob@example.com", "Str0ng!pass", "Bob")
	if err != nil {
		t.Fatalf("second Register failed: %v", err)
	}
	if second.Role != "user" {
		t.Errorf("second account role = %q, want user", second.Role)
	}

	if _, _, err := svc.Login("ada@example.com", "wrong-Passw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}

	logged, pair2, err := svc.Login("ada@example.com", "Str0ng!pass")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if logged.UID != account.UID {
		t.Errorf("login returned uid %s, want %s", logged.UID, account.UID)
	}
	if logged.LastLoginAt == nil {
		t.Error("login should record last_login_at")
	}
	if pair2.RefreshToken == pair.RefreshToken {
		t.Error("each login should mint a distinct refresh token")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestAccountService(t)

	if _, _, err := svc.Register("not-an-email", "Str0ng!pass", ""); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("bad email: got %v, want ErrInvalidEmail", err)
	}
	if _, _, err := svc.Register("ok@example.com", "weak", ""); err == nil {
		t.Error("weak password should be rejected")
	}

	// Missing display names fall back to the email local part.
	account, _, err := svc.Register("grace@example.com", "Str0ng!pass", "   ")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if account.FullName != "grace" {
		t.Errorf("full name fallback: got %q, want %q", account.FullName, "grace")
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := newTestAccountService(t)

	if _, _, err := svc.Login("ghost@example.com", "Str0ng!pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v, want ErrInvalidCredentials", err)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	svc := newTestAccountService(t)

	account, pair, err := svc.Register("linus@example.com", "Str0ng!pass", "Linus")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	refreshed, accessToken, err := svc.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if refreshed.UID != account.UID || accessToken == "" {
		t.Error("refresh should return the account and a new access token")
	}

	if _, _, err := svc.Refresh("not-a-jwt"); !errors.Is(err, ErrRefreshInvalid) {
		t.Errorf("garbage token: got %v, want ErrRefreshInvalid", err)
	}

	if err := svc.Logout(account.UID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, _, err := svc.Refresh(pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Errorf("revoked token: got %v, want ErrRefreshInvalid", err)
	}
}

func TestPruneRefreshTokens(t *testing.T) {
	svc := newTestAccountService(t)

	account, _, err := svc.Register("prune@example.com", "Str0ng!pass", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := svc.Logout(account.UID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	n, err := svc.PruneRefreshTokens()
	if err != nil {
		t.Fatalf("PruneRefreshTokens failed: %v", err)
	}
	if n < 1 {
		t.Errorf("expected at least one pruned row, got %d", n)
	}
}

func TestValidEmail(t *testing.T) {
	cases := map[string]bool{
		"ada@example.com": true,
		"a@b":             true,
		"no-at-sign":      false,
		"@example.com":    false,
		"trailing@":       false,
		"spa ce@x.com":    false,
	}
	for email, want := range cases {
		if got := validEmail(email); got != want {
			t.Errorf("validEmail(%q) = %v, want %v", email, got, want)
		}
	}
}
