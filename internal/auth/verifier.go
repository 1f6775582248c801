// Package auth verifies bearer tokens issued by an external identity
// provider and carries the resulting identity through request contexts.
//
// VERIFICATION FLOW:
//  1. The credential is taken from the Authorization header, the
//     X-Access-Token header or an access token cookie (see ExtractToken).
//  2. The token header is decoded without verification to read its "kid".
//  3. The provider's key set is downloaded and parsed with jwx, and the
//     key matching the kid is selected.
//  4. The signature, algorithm, audience, issuer and expiry are checked by
//     golang-jwt. "iat" is not checked: a token issued slightly in the
//     future by a skewed provider clock is accepted.
//  5. Standard and namespaced claims are mapped onto an Identity.
//
// Every failure a client can cause is an *Error with a stable code, so the
// transport can answer with {code, description} and the right status.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// KeySource supplies the provider's current key set.
type KeySource interface {
	Fetch(ctx context.Context) (*KeySet, error)
}

// TokenVerifier turns a raw token into an Identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// VerifierConfig holds expected claim values.
type VerifierConfig struct {
	Issuer     string   // e.g. "https://tenant.auth0.com/"
	Audience   string   // skipped when empty
	Algorithms []string // defaults to RS256
	Namespace  string   // prefix of custom claims, ends with "/"
}

// Verifier checks RS256 tokens against a key set fetched per call.
type Verifier struct {
	keys   KeySource
	cfg    VerifierConfig
	parser *jwt.Parser
}

var _ TokenVerifier = (*Verifier)(nil)

func NewVerifier(keys KeySource, cfg VerifierConfig) *Verifier {
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = []string{"RS256"}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(cfg.Algorithms),
		jwt.WithIssuer(cfg.Issuer),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{
		keys:   keys,
		cfg:    cfg,
		parser: jwt.NewParser(opts...),
	}
}

// Verify validates raw and returns the identity it carries.
//
// Errors a client can cause are *Error values. A failure to download the key
// set is returned as a plain wrapped error.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, InvalidHeader("Invalid token header.")
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, InvalidHeader("Invalid token header.")
	}

	keys, err := v.keys.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: verifying token: %w", err)
	}

	pub, err := keys.PublicKey(kid)
	switch {
	case errors.Is(err, errKeyNotFound):
		return nil, InvalidHeader("Unable to find matching JWKS key.")
	case err != nil:
		return nil, InvalidHeader("Unable to parse JWKS key.")
	}

	claims := jwt.MapClaims{}
	_, err = v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return pub, nil
	})
	if err != nil {
		// golang-jwt checks the signature before claims, so an expired
		// token here is known to be genuine.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, TokenExpired()
		}
		return nil, InvalidHeader(err.Error())
	}

	return v.identity(claims), nil
}

func (v *Verifier) identity(c jwt.MapClaims) *Identity {
	ns := v.cfg.Namespace
	return &Identity{
		Subject:  stringClaim(c, "sub"),
		Email:    stringClaim(c, ns+"email", "email"),
		Name:     stringClaim(c, ns+"name", "name"),
		Nickname: stringClaim(c, "nickname"),
		Roles:    rolesClaim(c, ns+"roles", "roles"),
	}
}

// stringClaim returns the first non-empty string among keys.
func stringClaim(c jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if s, ok := c[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func rolesClaim(c jwt.MapClaims, keys ...string) []string {
	for _, k := range keys {
		switch v := c[k].(type) {
		case []any:
			roles := make([]string, 0, len(v))
			for _, r := range v {
				if s, ok := r.(string); ok && s != "" {
					roles = append(roles, s)
				}
			}
			return roles
		case string:
			if v != "" {
				return []string{v}
			}
		}
	}
	return nil
}

// disabledVerifier rejects everything. It stands in when no identity
// provider is configured.
type disabledVerifier struct{}

func (disabledVerifier) Verify(context.Context, string) (*Identity, error) {
	return nil, InvalidHeader("Authentication is not configured.")
}

// Disabled returns a TokenVerifier that rejects every token.
func Disabled() TokenVerifier {
	return disabledVerifier{}
}
