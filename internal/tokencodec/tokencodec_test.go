package tokencodec

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gwsession/sdk/internal/sdkerr"
)

func signHS256(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString([]byte("unverified-codec-does-not-check-this"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestDecode_RoundTrip(t *testing.T) {
	now := time.Now()
	claims := Claims{
		SessionID:       "sess-1",
		ApplicationID:   "app-1",
		UserID:          "user-1",
		OrgID:           "org-1",
		StartTime:       now.Unix(),
		DurationMinutes: 60,
		IssuedAt:        now.Unix(),
		ExpiresAt:       now.Add(time.Hour).Unix(),
		Issuer:          "marketplace",
		Subject:         "user-1",
	}
	token := signHS256(t, claims)

	got, err := Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.SessionID != claims.SessionID || got.ApplicationID != claims.ApplicationID {
		t.Fatalf("claims mismatch: %+v", got)
	}
}

func TestDecode_MalformedToken(t *testing.T) {
	_, err := Decode("not-a-jwt")
	if sdkerr.CodeOf(err) != sdkerr.CodeMalformedToken {
		t.Fatalf("expected MalformedToken, got %v", err)
	}
}

func TestDecode_BadJSON(t *testing.T) {
	_, err := Decode("aGVhZGVy.bm90LWpzb24.c2ln")
	if sdkerr.CodeOf(err) != sdkerr.CodeDecodeError {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestDecodeHeader(t *testing.T) {
	claims := Claims{SessionID: "s"}
	token := signHS256(t, claims)

	h, err := DecodeHeader(token)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.Alg != "HS256" || h.Kid != "test-key" {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestExtractClaim(t *testing.T) {
	claims := Claims{SessionID: "sess-7", UserID: "u-7"}
	token := signHS256(t, claims)

	v, err := ExtractClaim(token, "sessionId")
	if err != nil {
		t.Fatalf("ExtractClaim: %v", err)
	}
	if v != "sess-7" {
		t.Fatalf("expected sess-7, got %v", v)
	}

	v, err = ExtractClaim(token, "doesNotExist")
	if err != nil {
		t.Fatalf("ExtractClaim: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil for absent claim, got %v", v)
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()

	expired := signHS256(t, Claims{ExpiresAt: now.Add(-time.Minute).Unix()})
	ok, err := IsExpired(expired, now)
	if err != nil || !ok {
		t.Fatalf("expected expired=true, got %v err=%v", ok, err)
	}

	future := signHS256(t, Claims{ExpiresAt: now.Add(time.Minute).Unix()})
	ok, err = IsExpired(future, now)
	if err != nil || ok {
		t.Fatalf("expected expired=false, got %v err=%v", ok, err)
	}

	noExp := signHS256(t, Claims{SessionID: "s"})
	ok, err = IsExpired(noExp, now)
	if err != nil || ok {
		t.Fatalf("expected expired=false for absent exp, got %v err=%v", ok, err)
	}
}

func TestGetTimeRemaining(t *testing.T) {
	now := time.Now()

	token := signHS256(t, Claims{ExpiresAt: now.Add(90 * time.Second).Unix()})
	remaining, err := GetTimeRemaining(token, now)
	if err != nil {
		t.Fatalf("GetTimeRemaining: %v", err)
	}
	if remaining < 88 || remaining > 90 {
		t.Fatalf("expected ~90s remaining, got %d", remaining)
	}

	past := signHS256(t, Claims{ExpiresAt: now.Add(-time.Minute).Unix()})
	remaining, err = GetTimeRemaining(past, now)
	if err != nil {
		t.Fatalf("GetTimeRemaining: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 for expired token, got %d", remaining)
	}

	noExp := signHS256(t, Claims{SessionID: "s"})
	remaining, err = GetTimeRemaining(noExp, now)
	if err != nil {
		t.Fatalf("GetTimeRemaining: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 for absent exp, got %d", remaining)
	}
}
