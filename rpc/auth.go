package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"evmbridge/core/types"
	"evmbridge/crypto"
)

// RootScope grants the root origin to a bearer token.
const RootScope = "root"

type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	// AllowAnonymous admits requests without a bearer token. They can only
	// reach read-only methods.
	AllowAnonymous bool
	ClockSkew      time.Duration
}

type contextKey string

const contextKeyOrigin contextKey = "rpc.origin"

// Authenticator maps HMAC-signed bearer tokens onto runtime origins: the
// subject is the caller's account and the root scope grants root.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	auth := &Authenticator{cfg: cfg, logger: logger}
	auth.secret = []byte(strings.TrimSpace(cfg.HMACSecret))
	if cfg.Enabled && len(auth.secret) == 0 {
		return nil, errors.New("rpc: auth enabled without an HMAC secret")
	}
	if auth.cfg.ScopeClaim == "" {
		auth.cfg.ScopeClaim = "scope"
	}
	if auth.cfg.ClockSkew <= 0 {
		auth.cfg.ClockSkew = 2 * time.Minute
	}
	return auth, nil
}

// OriginFromContext returns the origin attached by the auth middleware.
func OriginFromContext(ctx context.Context) (types.Origin, bool) {
	origin, ok := ctx.Value(contextKeyOrigin).(types.Origin)
	return origin, ok
}

// Middleware authenticates the request and attaches its origin. With auth
// disabled every request acts as root, which is only meant for local
// development.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyOrigin, types.RootOrigin())))
			return
		}
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			if a.cfg.AllowAnonymous {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusUnauthorized, nil, codeUnauthorized, "missing bearer token", nil)
			return
		}
		origin, err := a.Authenticate(tokenString)
		if err != nil {
			a.logger.Warn("rpc token rejected", "remote", clientSource(r), "error", err)
			writeError(w, http.StatusUnauthorized, nil, codeUnauthorized, "invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyOrigin, origin)))
	})
}

// Authenticate validates tokenString and returns the origin it grants.
func (a *Authenticator) Authenticate(tokenString string) (types.Origin, error) {
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return types.Origin{}, err
	}
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return types.Origin{}, err
	}
	if hasScopes(extractScopes(claims, a.cfg.ScopeClaim), []string{RootScope}) {
		return types.RootOrigin(), nil
	}
	subject, _ := claims["sub"].(string)
	if strings.TrimSpace(subject) == "" {
		return types.Origin{}, errors.New("subject required")
	}
	account, err := crypto.ParseAccountID(subject)
	if err != nil {
		return types.Origin{}, fmt.Errorf("subject: %w", err)
	}
	if account.IsZero() {
		return types.Origin{}, errors.New("subject is the zero account")
	}
	return types.SignedOrigin(account), nil
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

// TokenRequest describes a bearer token to mint.
type TokenRequest struct {
	Secret   string
	Issuer   string
	Audience string
	// Subject is the account the token acts for. It may be empty for root
	// tokens.
	Subject string
	Scopes  []string
	TTL     time.Duration
	Now     time.Time
}

// IssueToken mints an HS256 token accepted by the Authenticator.
func IssueToken(req TokenRequest) (string, error) {
	secret := strings.TrimSpace(req.Secret)
	if secret == "" {
		return "", errors.New("rpc: token secret required")
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if req.Issuer != "" {
		claims["iss"] = req.Issuer
	}
	if req.Audience != "" {
		claims["aud"] = req.Audience
	}
	if req.Subject != "" {
		account, err := crypto.ParseAccountID(req.Subject)
		if err != nil {
			return "", fmt.Errorf("rpc: token subject: %w", err)
		}
		claims["sub"] = account.String()
	}
	if len(req.Scopes) > 0 {
		claims["scope"] = strings.Join(req.Scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		default:
			return errors.New("audience missing")
		}
	}
	return nil
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	if scopeClaim == "" {
		scopeClaim = "scope"
	}
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScopes(scopes []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
