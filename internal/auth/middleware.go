package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// contextKey is unexported so only this package can read or write its
// context values.
type contextKey string

const (
	identityKey contextKey = "identity"
	sessionKey  contextKey = "session"
)

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity attached by RequireAuth or
// WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}

// session verifies the request credential lazily, at most once.
type session struct {
	once     sync.Once
	resolve  func() (*Identity, error)
	identity *Identity
	err      error
}

func (s *session) get() (*Identity, error) {
	s.once.Do(func() {
		s.identity, s.err = s.resolve()
	})
	return s.identity, s.err
}

// RequireIdentity returns the caller's identity, verifying the request
// credential if that has not happened yet. A non-empty role must be present
// on the identity.
func RequireIdentity(ctx context.Context, role string) (*Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		s, hasSession := ctx.Value(sessionKey).(*session)
		if !hasSession {
			return nil, ErrHeaderMissing()
		}
		var err error
		if id, err = s.get(); err != nil {
			return nil, err
		}
	}

	if role != "" && !id.HasRole(role) {
		return nil, Forbidden(fmt.Sprintf("Role '%s' required.", role))
	}
	return id, nil
}

// OptionalIdentity returns the caller's identity when the request carries a
// valid credential and nil otherwise.
func OptionalIdentity(ctx context.Context) *Identity {
	id, err := RequireIdentity(ctx, "")
	if err != nil {
		return nil
	}
	return id
}

// Guard authenticates HTTP requests with a TokenVerifier.
type Guard struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

func NewGuard(verifier TokenVerifier, logger *slog.Logger) *Guard {
	return &Guard{verifier: verifier, logger: logger}
}

// Authenticate extracts and verifies the credential on r and checks role,
// when one is given.
func (g *Guard) Authenticate(r *http.Request, role string) (*Identity, error) {
	token, err := ExtractToken(r)
	if err != nil {
		return nil, err
	}

	id, err := g.verifier.Verify(r.Context(), token)
	if err != nil {
		return nil, err
	}

	return RequireIdentity(WithIdentity(r.Context(), id), role)
}

// RequireAuth rejects requests without a valid credential (and role, when
// role is non-empty) and stores the identity in the request context.
func (g *Guard) RequireAuth(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := g.Authenticate(r, role)
			if err != nil {
				g.logRejection(r, err)
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithSession attaches a lazy session to the request. Nothing is verified
// until a handler calls RequireIdentity or OptionalIdentity, so anonymous
// requests never trigger a key set download.
func (g *Guard) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := &session{resolve: func() (*Identity, error) {
			token, err := ExtractToken(r)
			if err != nil {
				return nil, err
			}
			id, err := g.verifier.Verify(r.Context(), token)
			if err != nil {
				g.logRejection(r, err)
			}
			return id, err
		}}
		ctx := context.WithValue(r.Context(), sessionKey, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Guard) logRejection(r *http.Request, err error) {
	if authErr, ok := AsError(err); ok {
		g.logger.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.String("code", authErr.Code),
			slog.String("description", authErr.Description),
		)
		return
	}
	g.logger.Error("credential verification failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}
