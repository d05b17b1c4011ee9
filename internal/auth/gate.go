package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/castlogic-core/internal/infrastructure/config"
)

// HeaderAPIKey is the request header carrying an API key.
const HeaderAPIKey = "X-API-Key"

// AnonymousCaller is the caller used when API keys are disabled.
var AnonymousCaller = Caller{ID: "anonymous", Role: RoleController}

// fingerprintLen is the number of hex characters of the key hash used as caller ID.
const fingerprintLen = 12

type apiKey struct {
	secret []byte
	caller Caller
}

// KeyGate authenticates requests by API key or bearer token.
//
// A configured key may carry a role prefix ("viewer:abc123"); keys
// without one are controllers.
type KeyGate struct {
	enabled    bool
	keys       []apiKey
	jwtSecret  string
	ttlMinutes int
}

// NewKeyGate builds a gate from the security configuration.
func NewKeyGate(cfg config.SecurityConfig) *KeyGate {
	g := &KeyGate{
		enabled:    cfg.APIKeys.Enabled,
		jwtSecret:  cfg.JWT.Secret,
		ttlMinutes: cfg.JWT.AccessTokenTTL,
	}
	if g.ttlMinutes <= 0 {
		g.ttlMinutes = DefaultTokenTTLMinutes
	}
	for _, raw := range cfg.APIKeys.Keys {
		role, key := splitRole(strings.TrimSpace(raw))
		if key == "" {
			continue
		}
		g.keys = append(g.keys, apiKey{
			secret: []byte(key),
			caller: Caller{ID: Fingerprint(key), Role: role},
		})
	}
	return g
}

// Enabled reports whether requests must present credentials.
func (g *KeyGate) Enabled() bool {
	return g.enabled
}

// Authenticate identifies the caller of r from its X-API-Key header or
// its bearer token.
func (g *KeyGate) Authenticate(r *http.Request) (Caller, error) {
	if !g.enabled {
		return AnonymousCaller, nil
	}
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return g.CheckKey(key)
	}
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return Caller{}, fmt.Errorf("%w: unsupported authorization scheme", ErrTokenInvalid)
		}
		return g.CheckToken(strings.TrimSpace(token))
	}
	return Caller{}, ErrNoCredentials
}

// CheckKey returns the caller owning key.
func (g *KeyGate) CheckKey(key string) (Caller, error) {
	if !g.enabled {
		return AnonymousCaller, nil
	}
	presented := []byte(key)
	var found *Caller
	// Compare against every key so timing does not reveal the match position.
	for i := range g.keys {
		if subtle.ConstantTimeCompare(g.keys[i].secret, presented) == 1 && found == nil {
			found = &g.keys[i].caller
		}
	}
	if found == nil {
		return Caller{}, ErrKeyInvalid
	}
	return *found, nil
}

// CheckToken parses a bearer token issued by IssueToken.
func (g *KeyGate) CheckToken(token string) (Caller, error) {
	if !g.enabled {
		return AnonymousCaller, nil
	}
	claims, err := ParseToken(token, g.jwtSecret)
	if err != nil {
		return Caller{}, err
	}
	return Caller{ID: claims.Subject, Role: claims.Role}, nil
}

// IssueToken exchanges an API key for a signed access token.
func (g *KeyGate) IssueToken(key string) (string, time.Duration, error) {
	caller, err := g.CheckKey(key)
	if err != nil {
		return "", 0, err
	}
	token, err := GenerateAccessToken(caller, g.jwtSecret, g.ttlMinutes)
	if err != nil {
		return "", 0, err
	}
	return token, time.Duration(g.ttlMinutes) * time.Minute, nil
}

// Fingerprint returns a short, stable identifier for key that is safe to log.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key-" + hex.EncodeToString(sum[:])[:fingerprintLen]
}

func splitRole(raw string) (Role, string) {
	if prefix, key, ok := strings.Cut(raw, ":"); ok && IsValidRole(Role(prefix)) {
		return Role(prefix), key
	}
	return RoleController, raw
}
