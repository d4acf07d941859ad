package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingCredential indicates no bearer token was presented.
	ErrMissingCredential = errors.New("token is missing")
	// ErrInvalidCredential indicates the token failed signature or claim checks.
	ErrInvalidCredential = errors.New("invalid token")
	// ErrExpiredCredential indicates the token expiry has passed.
	ErrExpiredCredential = errors.New("token has expired")
)

const issuerName = "walletflow-user-service"

// Claims is the payload minted by the user service.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens issued by the identity issuer.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier for HS256 tokens signed with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses a bearer token and returns the identity it grants.
func (v *Verifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingCredential
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredCredential
		}
		return Identity{}, ErrInvalidCredential
	}
	if !parsed.Valid || claims.UserID <= 0 {
		return Identity{}, ErrInvalidCredential
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return Identity{ownerID: claims.UserID, credential: Credential(token), expiresAt: expiresAt}, nil
}

// ParseBearer extracts the token from an Authorization header. The "Bearer "
// prefix is optional, as the user service has always accepted raw tokens.
func ParseBearer(header string) (string, error) {
	header = strings.TrimLeft(header, " \t")
	const prefix = "bearer"
	if len(header) >= len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		rest := header[len(prefix):]
		// A bare scheme carries no token; "Bearertoken" is a raw token.
		if strings.TrimSpace(rest) == "" {
			return "", ErrMissingCredential
		}
		if rest[0] == ' ' || rest[0] == '\t' {
			header = rest
		}
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredential
	}
	return header, nil
}

// Issuer mints tokens the way the user service does. Used by local tooling
// and tests; production tokens come from the external issuer.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer builds an issuer signing with secret. A non-positive ttl defaults to 24h.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for ownerID.
func (i *Issuer) Issue(ownerID int64) (Credential, error) {
	now := i.now()
	claims := Claims{
		UserID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", err
	}
	return Credential(signed), nil
}
