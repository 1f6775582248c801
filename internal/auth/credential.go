package auth

import (
	"net/http"
	"strings"
)

// AccessTokenHeader is checked when the Authorization header carries no
// bearer token.
const AccessTokenHeader = "X-Access-Token"

// tokenCookies are checked in order after both headers.
var tokenCookies = []string{"access_token", "accessToken", "access-token"}

// ExtractToken finds the bearer credential on r. The sources, in priority
// order, are the Authorization header, the X-Access-Token header and the
// access token cookies.
//
// An Authorization header that is not exactly "Bearer <token>" is skipped,
// so a proxy's Basic credentials do not hide a token sent further down.
func ExtractToken(r *http.Request) (string, error) {
	if token, ok := bearer(r.Header.Get("Authorization")); ok {
		return token, nil
	}

	if token := strings.TrimSpace(r.Header.Get(AccessTokenHeader)); token != "" {
		return strings.TrimSpace(strings.TrimPrefix(token, "Bearer ")), nil
	}

	for _, name := range tokenCookies {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value, nil
		}
	}

	return "", ErrHeaderMissing()
}

// bearer returns the token of a "Bearer <token>" header value.
func bearer(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
