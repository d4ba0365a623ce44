package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/odyssey-erp/wholesale/internal/rbac"
)

// ErrInvalidToken indicates a bearer token that failed verification.
var ErrInvalidToken = errors.New("identity: invalid token")

// Claims is the JWT payload carried by API callers. Subject holds the user id.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity verifies bearer tokens and turns them into principals.
type Identity struct {
	secret []byte
	issuer string
	now    func() time.Time
	logger *slog.Logger
}

// NewIdentity constructs Identity for HS256 tokens signed with secret.
func NewIdentity(secret, issuer string, logger *slog.Logger) *Identity {
	if logger == nil {
		logger = slog.Default()
	}
	return &Identity{secret: []byte(secret), issuer: issuer, now: time.Now, logger: logger}
}

// IssueToken signs a token for p that expires after ttl.
func (i *Identity) IssueToken(p rbac.Principal, ttl time.Duration) (string, error) {
	if !p.Valid() {
		return "", fmt.Errorf("%w: principal requires user id and known role", ErrInvalidToken)
	}
	now := i.now()
	claims := &Claims{
		Name: p.Name,
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Parse verifies raw and returns the principal it names.
func (i *Identity) Parse(raw string) (rbac.Principal, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return rbac.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return rbac.Principal{}, ErrInvalidToken
	}
	if i.issuer != "" && !claims.VerifyIssuer(i.issuer, true) {
		return rbac.Principal{}, fmt.Errorf("%w: issuer %q", ErrInvalidToken, claims.Issuer)
	}
	role, err := rbac.ParseRole(claims.Role)
	if err != nil {
		return rbac.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	p := rbac.Principal{UserID: claims.Subject, Name: claims.Name, Role: role}
	if !p.Valid() {
		return rbac.Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return p, nil
}

// Middleware attaches the bearer principal to the request context. Requests
// without a token pass through anonymously; routes that need a principal are
// guarded by rbac.Middleware.
func (i *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		p, err := i.Parse(strings.TrimSpace(raw))
		if err != nil {
			i.logger.Warn("identity rejected token", slog.Any("error", err), slog.String("path", r.URL.Path))
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), p)))
	})
}
