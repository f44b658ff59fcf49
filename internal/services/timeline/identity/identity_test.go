package identity

import (
	"testing"
	"time"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"golang.org/x/crypto/bcrypt"
)

func testTokens(t *testing.T, now func() time.Time) *Tokens {
	t.Helper()
	tokens, err := NewTokens(TokenConfig{Secret: "0123456789abcdef0123", Issuer: "timeliner", Audience: "timeliner-api", TTL: time.Hour}, now)
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	return tokens
}

func TestSignVerifyRoundTrip(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tokens := testTokens(t, func() time.Time { return now })

	token, err := tokens.Sign("user-1", true)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || !claims.Admin {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected expiry one hour out, got %v", claims.ExpiresAt)
	}
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	issuer := testTokens(t, func() time.Time { return now })
	token, err := issuer.Sign("user-1", false)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	later := testTokens(t, func() time.Time { return now.Add(2 * time.Hour) })
	if _, err := later.Verify(token); apperrors.CodeOf(err) != apperrors.CodeTokenVerificationFailed {
		t.Fatalf("expected verification failure for expired token, got %v", err)
	}

	other, err := NewTokens(TokenConfig{Secret: "another-secret-value", Issuer: "timeliner", Audience: "timeliner-api", TTL: time.Hour}, func() time.Time { return now })
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	if _, err := other.Verify(token); apperrors.CodeOf(err) != apperrors.CodeTokenVerificationFailed {
		t.Fatalf("expected verification failure for foreign secret, got %v", err)
	}

	if _, err := issuer.Verify("not-a-token"); apperrors.CodeOf(err) != apperrors.CodeMalformedAuthorization {
		t.Fatalf("expected malformed token, got %v", err)
	}
	if _, err := issuer.Verify(" "); apperrors.CodeOf(err) != apperrors.CodeAuthorizationHeaderMissing {
		t.Fatalf("expected missing token, got %v", err)
	}
}

func TestNewTokensValidatesConfig(t *testing.T) {
	if _, err := NewTokens(TokenConfig{Secret: "short", Issuer: "i", Audience: "a", TTL: time.Hour}, nil); err == nil {
		t.Fatal("expected short secret to fail")
	}
	if _, err := NewTokens(TokenConfig{Secret: "0123456789abcdef", Issuer: "i", Audience: "a"}, nil); err == nil {
		t.Fatal("expected zero ttl to fail")
	}
}

func TestPasswordHashing(t *testing.T) {
	PasswordCost = bcrypt.MinCost
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ok, err := CheckPassword(hash, "correct horse")
	if err != nil || !ok {
		t.Fatalf("expected match, got %v %v", ok, err)
	}
	ok, err = CheckPassword(hash, "wrong")
	if err != nil || ok {
		t.Fatalf("expected mismatch, got %v %v", ok, err)
	}
	if ok, _ := CheckPassword("", "anything"); ok {
		t.Fatal("expected empty hash to never match")
	}
}
