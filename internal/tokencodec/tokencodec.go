// Package tokencodec decodes the compact three-segment session token without
// verifying its signature (spec §4.1).
//
// It is grounded on the teacher's internal/auth.Claims (internal/auth/jwt.go)
// for the claims shape, adapted from the marketplace's user/session claims
// to spec §3's session-token claims, and uses golang-jwt/jwt/v5's unverified
// parser for the base64url+JSON mechanics so this package never hand-rolls
// JWT framing.
package tokencodec

import (
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gwsession/sdk/internal/sdkerr"
)

// Header is the decoded first segment of a session token.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid,omitempty"`
	Typ string `json:"typ,omitempty"`
}

// Claims is the decoded second segment of a session token (spec §3).
type Claims struct {
	SessionID       string `json:"sessionId"`
	ApplicationID   string `json:"applicationId"`
	UserID          string `json:"userId"`
	OrgID           string `json:"orgId"`
	StartTime       int64  `json:"startTime"`
	DurationMinutes int    `json:"durationMinutes"`
	IssuedAt        int64  `json:"iat"`
	ExpiresAt       int64  `json:"exp"`
	Issuer          string `json:"iss"`
	Subject         string `json:"sub"`
}

// Valid always returns nil. It is not part of golang-jwt/v5's jwt.Claims
// interface (the Get* methods below satisfy that) and the parser never
// calls it. No validation happens here — this codec is explicitly unverified (spec
// §4.1); signature and claim enforcement live in package verifier.
func (c Claims) Valid() error { return nil }

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	if c.ExpiresAt == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	if c.IssuedAt == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}
func (c Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c Claims) GetIssuer() (string, error)              { return c.Issuer, nil }
func (c Claims) GetSubject() (string, error)              { return c.Subject, nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)    { return nil, nil }

var unverifiedParser = jwt.NewParser(jwt.WithoutClaimsValidation())

func segments(token string) ([]string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, sdkerr.MalformedToken("expected 3 segments, got " + strconv.Itoa(len(parts)))
	}
	return parts, nil
}

// Decode parses the claims segment of token without verifying its signature.
func Decode(token string) (*Claims, error) {
	if _, err := segments(token); err != nil {
		return nil, err
	}
	var claims Claims
	if _, _, err := unverifiedParser.ParseUnverified(token, &claims); err != nil {
		return nil, sdkerr.DecodeError(err)
	}
	return &claims, nil
}

// DecodeHeader parses the header segment of token without verifying its signature.
func DecodeHeader(token string) (*Header, error) {
	if _, err := segments(token); err != nil {
		return nil, err
	}
	var claims Claims
	t, _, err := unverifiedParser.ParseUnverified(token, &claims)
	if err != nil {
		return nil, sdkerr.DecodeError(err)
	}
	h := &Header{}
	if alg, ok := t.Header["alg"].(string); ok {
		h.Alg = alg
	}
	if kid, ok := t.Header["kid"].(string); ok {
		h.Kid = kid
	}
	if typ, ok := t.Header["typ"].(string); ok {
		h.Typ = typ
	}
	return h, nil
}

// ExtractClaim returns the named top-level claim as it was JSON-decoded
// (string, float64, bool, etc. — whatever encoding/json produced for it).
func ExtractClaim(token string, name string) (any, error) {
	if _, err := segments(token); err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if _, _, err := unverifiedParser.ParseUnverified(token, jwt.MapClaims(raw)); err != nil {
		return nil, sdkerr.DecodeError(err)
	}
	return raw[name], nil
}

// IsExpired reports whether the claims carry an exp in the past. A token
// with no exp claim is treated as not expired (spec §4.1).
func IsExpired(token string, now time.Time) (bool, error) {
	claims, err := Decode(token)
	if err != nil {
		return false, err
	}
	if claims.ExpiresAt == 0 {
		return false, nil
	}
	return now.Unix() >= claims.ExpiresAt, nil
}

// GetTimeRemaining returns max(0, exp-now) in seconds, or 0 if exp is absent.
func GetTimeRemaining(token string, now time.Time) (int64, error) {
	claims, err := Decode(token)
	if err != nil {
		return 0, err
	}
	if claims.ExpiresAt == 0 {
		return 0, nil
	}
	remaining := claims.ExpiresAt - now.Unix()
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
