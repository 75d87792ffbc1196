package jwt

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/totegamma/concrnt-parallel"
)

const (
	tokenType = "JWT"
	algorithm = "CONCRNT"

	// tokens issued slightly ahead of the local clock are still accepted
	clockSkew = 30 * time.Second
)

var (
	ErrMalformed   = errors.New("malformed jwt")
	ErrUnsupported = errors.New("unsupported jwt type")
	ErrExpired     = errors.New("jwt is already expired")
	ErrNotYetValid = errors.New("jwt is issued in the future")
)

func encodeSegment(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeSegment(seg string, v any) error {
	b, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	return nil
}

// Create signs claims with privatekey.
func Create(claims Claims, privatekey string) (string, error) {
	header, err := encodeSegment(Header{Type: tokenType, Algorithm: algorithm})
	if err != nil {
		return "", err
	}
	payload, err := encodeSegment(claims)
	if err != nil {
		return "", err
	}

	signingInput := header + "." + payload
	signature, err := parallel.SignBytes([]byte(signingInput), privatekey)
	if err != nil {
		return "", err
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

// Validate checks the signature and the time claims of token against the
// current time.
func Validate(token string) (*Header, *Claims, error) {
	return ValidateAt(token, time.Now())
}

func ValidateAt(token string, now time.Time) (*Header, *Claims, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return nil, nil, ErrMalformed
	}

	var header Header
	if err := decodeSegment(segments[0], &header); err != nil {
		return nil, nil, err
	}
	if header.Type != tokenType || header.Algorithm != algorithm {
		return nil, nil, ErrUnsupported
	}

	var claims Claims
	if err := decodeSegment(segments[1], &claims); err != nil {
		return nil, nil, err
	}
	if err := checkTime(claims, now); err != nil {
		return nil, nil, err
	}

	signature, err := base64.RawURLEncoding.DecodeString(segments[2])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	keyID := header.KeyID
	if keyID == "" {
		keyID = claims.Issuer
	}
	if err := parallel.VerifySignature([]byte(segments[0]+"."+segments[1]), signature, keyID); err != nil {
		return nil, nil, err
	}

	return &header, &claims, nil
}

func checkTime(claims Claims, now time.Time) error {
	if claims.ExpirationTime != "" {
		exp, err := strconv.ParseInt(claims.ExpirationTime, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: exp: %s", ErrMalformed, err)
		}
		if exp < now.Unix() {
			return ErrExpired
		}
	}
	if claims.IssuedAt != "" {
		iat, err := strconv.ParseInt(claims.IssuedAt, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: iat: %s", ErrMalformed, err)
		}
		if time.Unix(iat, 0).After(now.Add(clockSkew)) {
			return ErrNotYetValid
		}
	}
	return nil
}
