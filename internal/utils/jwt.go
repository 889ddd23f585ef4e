package utils // package utils provides helpers for session token creation and verification

import (
    "errors" // sentinel error for every verification failure
    "time"   // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// ErrInvalidToken is returned for every verification failure: missing token,
// bad signature, malformed payload or expiry.  Callers must not be able to
// tell which check failed.
var ErrInvalidToken = errors.New("invalid token")

// SessionToken represents a signed session credential along with its expiry.
// There is a single token kind with a fixed lifetime from issuance; no
// refresh flow and no revocation list exist, so a compromised token stays
// valid until it expires naturally.
type SessionToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// SessionClaims is the verified payload of a session token.  Roles are the
// role names embedded at mint time; they serve as a fallback only, since
// callers re-resolve current roles from the identity store when the user has
// a local record.
type SessionClaims struct {
    Subject string   // username the token was minted for
    Roles   []string // role names embedded at mint time
}

// NewSessionToken builds and signs an HS256 JWT carrying the subject and its
// role names.  The expiration is ttl from now; issuance time is recorded in
// the iat claim.
func NewSessionToken(secret, subject string, roles []string, ttl time.Duration) (SessionToken, error) {
    exp := time.Now().UTC().Add(ttl)
    claims := jwt.MapClaims{
        "sub":   subject,
        "roles": roles,
        "exp":   exp.Unix(),
        "iat":   time.Now().UTC().Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return SessionToken{}, err
    }
    return SessionToken{Token: signed, Exp: exp}, nil
}

// ParseSessionToken verifies a serialized token and extracts its claims.  It
// checks the signing method is HMAC, the signature matches the secret and
// the token has not expired; any failure yields ErrInvalidToken.  It is pure
// computation and never consults the identity store.
func ParseSessionToken(secret, raw string) (SessionClaims, error) {
    if raw == "" {
        return SessionClaims{}, ErrInvalidToken
    }
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return SessionClaims{}, ErrInvalidToken
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return SessionClaims{}, ErrInvalidToken
    }
    sub, ok := claims["sub"].(string)
    if !ok || sub == "" {
        return SessionClaims{}, ErrInvalidToken
    }
    out := SessionClaims{Subject: sub}
    // Roles decode as []interface{}; non-string entries are dropped.
    if rawRoles, ok := claims["roles"].([]interface{}); ok {
        for _, r := range rawRoles {
            if s, ok := r.(string); ok {
                out.Roles = append(out.Roles, s)
            }
        }
    }
    return out, nil
}
