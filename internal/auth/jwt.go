package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	// HMAC-SHA256 output size in bytes.
	hmacSHA256SigLen = 32
	// base64url-no-pad encoding length for a 32-byte HMAC:
	// - 32 bytes => 44 chars with one '=' padding
	// - without padding => 43 chars
	hmacSHA256SigB64Len = 43
	maxJWTHeaderB64Len  = 4 * 1024
	maxJWTPayloadB64Len = 16 * 1024
	maxJWTLen           = maxJWTHeaderB64Len + 1 + maxJWTPayloadB64Len + 1 + hmacSHA256SigB64Len
)

// TokenIssuer mints HS256 tokens with sub/email/iat/exp claims.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (i *TokenIssuer) Issue(identity Identity) (string, error) {
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}

	now := i.now()
	payload := map[string]any{
		"sub":   identity.UserID,
		"email": identity.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(i.ttl).Unix(),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	headerB64 := base64.RawURLEncoding.EncodeToString(headerJSON)
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadJSON)

	mac := hmac.New(sha256.New, i.secret)
	_, _ = mac.Write([]byte(headerB64))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write([]byte(payloadB64))
	sigB64 := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return headerB64 + "." + payloadB64 + "." + sigB64, nil
}

// TokenVerifier validates HS256 tokens and extracts the caller identity.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewTokenVerifier(secret string) TokenVerifier {
	return TokenVerifier{
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (v TokenVerifier) Verify(token string) (Identity, error) {
	headerB64, payloadB64, sigB64, ok := splitJWTParts(token)
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(headerB64)
	if err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	var header map[string]any
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	algRaw, ok := header["alg"]
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	alg, ok := algRaw.(string)
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	if alg != "HS256" {
		return Identity{}, ErrUnsupportedJWT
	}
	if typRaw, ok := header["typ"]; ok {
		if typRaw == nil {
			return Identity{}, ErrInvalidCredentials
		}
		if _, ok := typRaw.(string); !ok {
			return Identity{}, ErrInvalidCredentials
		}
	}

	gotSig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	if len(gotSig) != hmacSHA256SigLen {
		return Identity{}, ErrInvalidCredentials
	}

	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write([]byte(headerB64))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write([]byte(payloadB64))
	expectedSig := mac.Sum(nil)
	if !hmac.Equal(gotSig, expectedSig) {
		return Identity{}, ErrInvalidCredentials
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	dec := json.NewDecoder(bytes.NewReader(payloadJSON))
	dec.UseNumber()
	var claims map[string]any
	if err := dec.Decode(&claims); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	// json.Decoder allows trailing bytes after the first top-level value.
	// Ensure the payload is exactly one JSON object.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Identity{}, ErrInvalidCredentials
	}

	now := v.now().Unix()

	exp, ok := claims["exp"]
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	expUnix, err := parseUnixTimestamp(exp)
	if err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	if now >= expUnix {
		return Identity{}, ErrInvalidCredentials
	}

	iat, ok := claims["iat"]
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	if _, err := parseUnixTimestamp(iat); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	if nbf, ok := claims["nbf"]; ok {
		nbfUnix, err := parseUnixTimestamp(nbf)
		if err != nil {
			return Identity{}, ErrInvalidCredentials
		}
		if now < nbfUnix {
			return Identity{}, ErrInvalidCredentials
		}
	}

	subRaw, ok := claims["sub"]
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	subNum, ok := subRaw.(json.Number)
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	userID, err := subNum.Int64()
	if err != nil || userID <= 0 {
		return Identity{}, ErrInvalidCredentials
	}

	emailRaw, ok := claims["email"]
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	email, ok := emailRaw.(string)
	if !ok || email == "" {
		return Identity{}, ErrInvalidCredentials
	}

	return Identity{UserID: userID, Email: email}, nil
}

func splitJWTParts(token string) (headerB64, payloadB64, sigB64 string, ok bool) {
	if token == "" || len(token) > maxJWTLen {
		return "", "", "", false
	}
	headerB64, rest, found := strings.Cut(token, ".")
	if !found {
		return "", "", "", false
	}
	payloadB64, sigB64, found = strings.Cut(rest, ".")
	if !found {
		return "", "", "", false
	}
	if strings.Contains(sigB64, ".") {
		return "", "", "", false
	}
	if headerB64 == "" || payloadB64 == "" || sigB64 == "" {
		return "", "", "", false
	}
	if len(headerB64) > maxJWTHeaderB64Len || len(payloadB64) > maxJWTPayloadB64Len {
		return "", "", "", false
	}
	if len(sigB64) != hmacSHA256SigB64Len {
		return "", "", "", false
	}
	if !isBase64urlNoPad(headerB64, maxJWTHeaderB64Len) ||
		!isBase64urlNoPad(payloadB64, maxJWTPayloadB64Len) ||
		!isBase64urlNoPad(sigB64, hmacSHA256SigB64Len) {
		return "", "", "", false
	}
	return headerB64, payloadB64, sigB64, true
}

func isBase64urlNoPad(raw string, maxLen int) bool {
	if raw == "" || len(raw) > maxLen {
		return false
	}
	// Base64url without padding cannot have length mod 4 == 1.
	if len(raw)%4 == 1 {
		return false
	}
	for i := 0; i < len(raw); i++ {
		if _, ok := b64urlValue(raw[i]); !ok {
			return false
		}
	}
	// Tighten validation to canonical base64url-no-pad: the unused bits in the
	// final base64 quantum must be zero.
	//
	// - len % 4 == 2 => 4 unused bits (must be zero)
	// - len % 4 == 3 => 2 unused bits (must be zero)
	switch len(raw) % 4 {
	case 0:
		return true
	case 2:
		last, _ := b64urlValue(raw[len(raw)-1])
		return (last & 0x0f) == 0
	case 3:
		last, _ := b64urlValue(raw[len(raw)-1])
		return (last & 0x03) == 0
	default:
		// len%4==1 is rejected above.
		return false
	}
}

func b64urlValue(b byte) (byte, bool) {
	switch {
	case b >= 'A' && b <= 'Z':
		return b - 'A', true
	case b >= 'a' && b <= 'z':
		return b - 'a' + 26, true
	case b >= '0' && b <= '9':
		return b - '0' + 52, true
	case b == '-':
		return 62, true
	case b == '_':
		return 63, true
	default:
		return 0, false
	}
}

func parseUnixTimestamp(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	default:
		return 0, fmt.Errorf("invalid timestamp %T", v)
	}
}
