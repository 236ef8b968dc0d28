package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/dmehra2102/food-order-platform/pkg/httpx"
)

var (
	ErrNoToken         = errors.New("auth: bearer token missing")
	ErrTokenInvalid    = errors.New("auth: token invalid")
	ErrEmailUnverified = errors.New("auth: email not verified")
)

// Authenticator verifies bearer JWTs issued by the identity provider.
// Roles are read from realm_access.roles and from a flat roles claim.
type Authenticator struct {
	log           *slog.Logger
	hmacSecret    []byte
	publicKey     *rsa.PublicKey
	issuer        string
	requireVerify bool
}

type Option func(*Authenticator)

func WithHMACSecret(secret string) Option {
	return func(a *Authenticator) { a.hmacSecret = []byte(secret) }
}

func WithRSAPublicKey(key *rsa.PublicKey) Option {
	return func(a *Authenticator) { a.publicKey = key }
}

func WithIssuer(iss string) Option {
	return func(a *Authenticator) { a.issuer = strings.TrimSpace(iss) }
}

// WithEmailVerification toggles the email_verified requirement. It is on by default.
func WithEmailVerification(required bool) Option {
	return func(a *Authenticator) { a.requireVerify = required }
}

func NewAuthenticator(log *slog.Logger, opts ...Option) (*Authenticator, error) {
	a := &Authenticator{log: log, requireVerify: true}
	for _, opt := range opts {
		opt(a)
	}
	if len(a.hmacSecret) == 0 && a.publicKey == nil {
		return nil, errors.New("auth: no verification key configured")
	}
	return a, nil
}

// LoadRSAPublicKey reads a PEM encoded RSA public key from path.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return jwt.ParseRSAPublicKeyFromPEM(raw)
}

// Verify parses and validates a raw token and returns the caller it describes.
func (a *Authenticator) Verify(raw string) (Caller, error) {
	if raw == "" {
		return Caller{}, ErrNoToken
	}

	methods := make([]string, 0, 2)
	if len(a.hmacSecret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if a.publicKey != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	parser := jwt.NewParser(jwt.WithValidMethods(methods))

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.Alg() {
		case jwt.SigningMethodHS256.Alg():
			return a.hmacSecret, nil
		case jwt.SigningMethodRS256.Alg():
			return a.publicKey, nil
		}
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	})
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return Caller{}, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return Caller{}, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}
	if a.requireVerify {
		if verified, _ := claims["email_verified"].(bool); !verified {
			return Caller{}, ErrEmailUnverified
		}
	}

	email, _ := claims["email"].(string)
	return Caller{
		Subject: sub,
		Token:   raw,
		Email:   email,
		Roles:   rolesFromClaims(claims),
	}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
			return
		}
		caller, err := a.Verify(token)
		if err != nil {
			a.log.Debug("token rejected", "err", err)
			httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "invalid token", http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func rolesFromClaims(claims jwt.MapClaims) []string {
	var raw []any
	if realm, ok := claims["realm_access"].(map[string]any); ok {
		if roles, ok := realm["roles"].([]any); ok {
			raw = append(raw, roles...)
		}
	}
	if roles, ok := claims["roles"].([]any); ok {
		raw = append(raw, roles...)
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		role := NormalizeRole(s)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
