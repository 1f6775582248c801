// Package authtest runs a fake identity provider for tests: an RSA signing
// key, a JWKS endpoint served by httptest and helpers to mint tokens.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/rs/xid"
)

const (
	Issuer    = "https://support-test.example/"
	Audience  = "https://api.support-test.example"
	Namespace = "https://pennylane.app/"
)

// Provider signs tokens and publishes the matching key set.
type Provider struct {
	Key    *rsa.PrivateKey
	KeyID  string
	server *httptest.Server

	fetches  atomic.Int64
	failNext atomic.Bool
}

// NewProvider starts a JWKS server that is closed when the test ends.
func NewProvider(t testing.TB) *Provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("authtest: generating key: %v", err)
	}

	p := &Provider{Key: key, KeyID: xid.New().String()}
	p.server = httptest.NewServer(http.HandlerFunc(p.serveJWKS))
	t.Cleanup(p.server.Close)
	return p
}

// JWKSURL is the URL of the published key set.
func (p *Provider) JWKSURL() string {
	return p.server.URL + "/.well-known/jwks.json"
}

// Fetches counts key set downloads.
func (p *Provider) Fetches() int64 {
	return p.fetches.Load()
}

// FailNextFetch makes the next key set request answer 503.
func (p *Provider) FailNextFetch() {
	p.failNext.Store(true)
}

func (p *Provider) serveJWKS(w http.ResponseWriter, r *http.Request) {
	p.fetches.Add(1)
	if p.failNext.Swap(false) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if r.URL.Path != "/.well-known/jwks.json" {
		http.NotFound(w, r)
		return
	}

	key, err := jwk.FromRaw(&p.Key.PublicKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = key.Set(jwk.KeyIDKey, p.KeyID)
	_ = key.Set(jwk.KeyUsageKey, "sig")
	_ = key.Set(jwk.AlgorithmKey, jwa.RS256)

	set := jwk.NewSet()
	_ = set.AddKey(key)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}

// Claims describes a token to mint. Zero values get sensible defaults.
type Claims struct {
	Subject  string
	Email    string
	Name     string
	Nickname string
	Roles    []string

	Issuer    string        // defaults to Issuer
	Audience  string        // defaults to Audience
	ExpiresIn time.Duration // defaults to one hour; negative means already expired
	KeyID     string        // defaults to the provider's key id
	OmitKeyID bool
	Extra     map[string]any
}

// Token signs c with the provider key.
func (p *Provider) Token(t testing.TB, c Claims) string {
	t.Helper()
	return p.sign(t, p.Key, c)
}

// TokenSignedBy signs c with a foreign key while still advertising the
// provider's key id.
func (p *Provider) TokenSignedBy(t testing.TB, key *rsa.PrivateKey, c Claims) string {
	t.Helper()
	return p.sign(t, key, c)
}

func (p *Provider) sign(t testing.TB, key *rsa.PrivateKey, c Claims) string {
	t.Helper()

	now := time.Now()
	if c.Issuer == "" {
		c.Issuer = Issuer
	}
	if c.Audience == "" {
		c.Audience = Audience
	}
	if c.ExpiresIn == 0 {
		c.ExpiresIn = time.Hour
	}

	claims := jwt.MapClaims{
		"iss": c.Issuer,
		"aud": c.Audience,
		"iat": now.Add(-time.Minute).Unix(),
		"exp": now.Add(c.ExpiresIn).Unix(),
	}
	if c.Subject != "" {
		claims["sub"] = c.Subject
	}
	if c.Email != "" {
		claims[Namespace+"email"] = c.Email
	}
	if c.Name != "" {
		claims[Namespace+"name"] = c.Name
	}
	if c.Nickname != "" {
		claims["nickname"] = c.Nickname
	}
	if c.Roles != nil {
		claims[Namespace+"roles"] = c.Roles
	}
	for k, v := range c.Extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if !c.OmitKeyID {
		kid := c.KeyID
		if kid == "" {
			kid = p.KeyID
		}
		token.Header["kid"] = kid
	}

	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("authtest: signing token: %v", err)
	}
	return signed
}
