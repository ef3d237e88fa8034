package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// tokenAudience pins access tokens to this service. A token minted by
// another deployment that happens to share the secret does not parse here.
const tokenAudience = "talentpad/api"

// Claims is the payload of an access token. Sub is the user ID, Name the
// display name shown to collaborators, JTI the session identifier.
type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
	JTI  string `json:"jti"`
	Aud  string `json:"aud"`
	Exp  int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// IssueToken signs claims into a payload.signature token. The audience is
// set here; callers only fill the user-specific fields.
func IssueToken(secret []byte, claims Claims) (string, error) {
	claims.Aud = tokenAudience
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return payload + "." + signPayload(secret, payload), nil
}

// ParseToken verifies the signature and claims of a token issued by
// IssueToken. Expired tokens return ErrExpiredToken; everything else that
// fails returns ErrInvalidToken.
func ParseToken(secret []byte, token string) (Claims, error) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(signature), []byte(signPayload(secret, payload))) {
		return Claims{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}

	switch {
	case claims.Sub == "" || claims.Name == "" || claims.JTI == "" || claims.Exp == 0:
		return Claims{}, ErrInvalidToken
	case claims.Aud != tokenAudience:
		return Claims{}, ErrInvalidToken
	case time.Now().Unix() >= claims.Exp:
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

func signPayload(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// HashToken digests a refresh token for storage so the session store never
// holds the raw value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
