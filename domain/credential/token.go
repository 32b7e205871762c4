package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Session tokens authenticate developer-portal sessions. Format is
// header.payload.signature: base64url without padding, HMAC-SHA256 over
// header.payload.

// Claims carried inside a session token (value type).
type Claims struct {
	Subject   string `json:"sub"`
	Tier      string `json:"tier"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Token verification errors.
var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature mismatch")
	ErrTokenExpired   = errors.New("token expired")
)

var b64 = base64.RawURLEncoding

// SignToken produces a signed session token for the claims.
// This is a PURE function of (claims, secret).
func SignToken(claims Claims, secret []byte) string {
	header, _ := json.Marshal(tokenHeader{Alg: "HS256", Typ: "JWT"})
	payload, _ := json.Marshal(claims)

	signing := b64.EncodeToString(header) + "." + b64.EncodeToString(payload)
	return signing + "." + sign(signing, secret)
}

// VerifyToken checks signature and expiry and returns the claims.
// This is a PURE function of (token, secret, now).
func VerifyToken(token string, secret []byte, now time.Time) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrTokenMalformed
	}

	signing := parts[0] + "." + parts[1]
	expected := sign(signing, secret)
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return Claims{}, ErrTokenSignature
	}

	payload, err := b64.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrTokenMalformed
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, ErrTokenMalformed
	}

	if claims.ExpiresAt > 0 && now.UTC().Unix() >= claims.ExpiresAt {
		return Claims{}, ErrTokenExpired
	}
	return claims, nil
}

func sign(signing string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signing))
	return b64.EncodeToString(mac.Sum(nil))
}
