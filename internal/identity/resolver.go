package identity

import (
	"errors"
	"strings"

	"github.com/ankyy/musicbox/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var log = logger.Get("Identity")

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Identity is the resolved classification of a caller. Anonymous identities
// carry no user ID and no role. An Identity is immutable once resolved for
// a request.
type Identity struct {
	Authenticated bool
	UserID        uuid.UUID
	Role          Role
}

func Anonymous() Identity {
	return Identity{Authenticated: false}
}

func (identity Identity) IsAdmin() bool {
	return identity.Authenticated && identity.Role == RoleAdmin
}

type tokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

// Resolver turns an optional bearer credential in to an Identity. Resolution
// is best-effort and never fails the request: a missing, malformed, expired
// or badly-signed credential all resolve to Anonymous. The distinction
// between "no credential" and "invalid credential" is logged for
// observability but MUST NOT influence control flow - the caller is never
// told why they are anonymous.
type Resolver struct {
	secret []byte
}

func NewResolver(secret []byte) *Resolver {
	return &Resolver{secret: secret}
}

// Resolve accepts the raw value of an Authorization header (or an empty
// string when the header is absent) and returns the callers Identity.
func (resolver *Resolver) Resolve(authHeader string) Identity {
	token, ok := bearerToken(authHeader)
	if !ok {
		log.Debugf("No credential supplied, resolving as anonymous\n")
		return Anonymous()
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected token signing method")
		}

		return resolver.secret, nil
	})
	if err != nil || !parsed.Valid {
		log.Warnf("Invalid credential detected (%v), resolving as anonymous\n", err)
		return Anonymous()
	}

	role := claims.Role
	if role != RoleAdmin {
		role = RoleMember
	}

	return Identity{Authenticated: true, UserID: claims.UserID, Role: role}
}

// bearerToken extracts the token portion of a 'Bearer <token>' header value.
func bearerToken(authHeader string) (string, bool) {
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}
