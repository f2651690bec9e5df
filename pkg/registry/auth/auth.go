// Package auth resolves the caller's identity from the Authorization header.
// Basic credentials are checked against bcrypt hashes; Bearer tokens are
// HS256 JWTs carrying a "name" claim. A request with missing or invalid
// credentials is anonymous, not rejected: handlers decide what that means.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-registry/pkg/registry"
	"golang.org/x/crypto/bcrypt"
)

const nameClaim = "name"

// ErrBadCredentials is returned by Login for an unknown user or wrong password.
var ErrBadCredentials = errors.New("bad username or password")

// Config holds the credential sources
type Config struct {
	// Users maps user names to bcrypt password hashes
	Users map[string]string
	// Admins lists the user names holding the admin role
	Admins []string
	// JWTSecret signs and verifies Bearer tokens. Tokens are disabled when empty.
	JWTSecret string
	TokenTTL  time.Duration
}

// Resolver turns request credentials into a registry.Identity
type Resolver struct {
	users  map[string][]byte
	admins map[string]struct{}
	tokens *jwtauth.JWTAuth
	ttl    time.Duration
}

// New creates a resolver from cfg
func New(cfg Config) *Resolver {
	r := &Resolver{
		users:  make(map[string][]byte, len(cfg.Users)),
		admins: make(map[string]struct{}, len(cfg.Admins)),
		ttl:    cfg.TokenTTL,
	}
	for name, hash := range cfg.Users {
		r.users[name] = []byte(hash)
	}
	for _, name := range cfg.Admins {
		r.admins[name] = struct{}{}
	}
	if cfg.JWTSecret != "" {
		r.tokens = jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)
	}
	if r.ttl == 0 {
		r.ttl = 24 * time.Hour
	}
	return r
}

// Identity builds the identity of an authenticated user name.
func (r *Resolver) Identity(name string) *registry.Identity {
	_, admin := r.admins[name]
	return &registry.Identity{Name: name, IsAdmin: admin}
}

// CheckPassword reports whether password matches the stored hash of name.
func (r *Resolver) CheckPassword(name, password string) bool {
	hash, ok := r.users[name]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// IssueToken mints a Bearer token for name.
func (r *Resolver) IssueToken(name string) (string, error) {
	if r.tokens == nil {
		return "", errors.New("token signing is not configured")
	}
	claims := map[string]interface{}{nameClaim: name}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, r.ttl)
	_, token, err := r.tokens.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Login checks a user's password and returns a fresh token.
func (r *Resolver) Login(name, password string) (string, error) {
	if !r.CheckPassword(name, password) {
		return "", ErrBadCredentials
	}
	return r.IssueToken(name)
}

// Middleware stores the resolved identity, if any, in the request context
// where registry.IdentityFromContext finds it.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	resolve := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if id := r.resolve(req); id != nil {
			req = req.WithContext(registry.WithIdentity(req.Context(), id))
		}
		next.ServeHTTP(w, req)
	})
	if r.tokens == nil {
		return resolve
	}
	return jwtauth.Verifier(r.tokens)(resolve)
}

func (r *Resolver) resolve(req *http.Request) *registry.Identity {
	if name, password, ok := req.BasicAuth(); ok {
		if r.CheckPassword(name, password) {
			return r.Identity(name)
		}
		return nil
	}
	if r.tokens == nil {
		return nil
	}

	token, claims, err := jwtauth.FromContext(req.Context())
	if err != nil || token == nil {
		return nil
	}
	name, _ := claims[nameClaim].(string)
	if name == "" {
		return nil
	}
	return r.Identity(name)
}

// HashPassword returns the bcrypt hash to store for password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
