package handler_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/support-desk/internal/auth"
	"github.com/sakif/support-desk/internal/auth/authtest"
	"github.com/sakif/support-desk/internal/handler"
	"github.com/sakif/support-desk/internal/model"
	"github.com/sakif/support-desk/internal/repository/sqlite"
	"github.com/sakif/support-desk/internal/schema"
	"github.com/sakif/support-desk/internal/service"
)

type testAPI struct {
	router   http.Handler
	provider *authtest.Provider
}

// newTestAPI mounts the handlers the way the server does, backed by an
// in-memory database and a fake identity provider.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := schema.New(schema.Services{
		Conversations: service.NewConversationService(db, logger),
		Challenges:    service.NewChallengeService(db, logger),
		Users:         service.NewUserService(db, logger),
	}, logger)
	require.NoError(t, err)

	p := authtest.NewProvider(t)
	fetcher, err := auth.NewKeySetFetcher(auth.FetcherConfig{URL: p.JWKSURL()}, logger)
	require.NoError(t, err)
	guard := auth.NewGuard(auth.NewVerifier(fetcher, auth.VerifierConfig{
		Issuer:     authtest.Issuer,
		Audience:   authtest.Audience,
		Algorithms: []string{"RS256"},
		Namespace:  authtest.Namespace,
	}), logger)

	r := chi.NewRouter()
	r.Get("/", handler.HandleHealth)
	r.With(guard.WithSession).Post("/graphql", handler.NewGraphQLHandler(s, logger).HandleQuery)
	r.With(guard.RequireAuth("")).Get("/api/secure-data", handler.HandleSecureData)

	return &testAPI{router: r, provider: p}
}

func (a *testAPI) graphql(t *testing.T, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

type gqlBody struct {
	Data   map[string]any `json:"data"`
	Errors []string       `json:"errors"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

// =========================================================================
// REST
// =========================================================================

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "PennyLane Support API is up!", rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
}

func TestSecureData(t *testing.T) {
	api := newTestAPI(t)

	t.Run("without credentials", func(t *testing.T) {
		rr := httptest.NewRecorder()
		api.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/secure-data", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, map[string]string{
			"code":        "authorization_header_missing",
			"description": "Authorization header expected",
		}, decode[map[string]string](t, rr))
	})

	t.Run("with a valid token in a cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/secure-data", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: api.provider.Token(t, authtest.Claims{Subject: "auth0|x"})})
		rr := httptest.NewRecorder()
		api.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, map[string]string{"message": "This is a protected route."}, decode[map[string]string](t, rr))
	})

	t.Run("with an expired token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/secure-data", nil)
		req.Header.Set("X-Access-Token", api.provider.Token(t, authtest.Claims{Subject: "auth0|x", ExpiresIn: -time.Minute}))
		rr := httptest.NewRecorder()
		api.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "token_expired", decode[map[string]string](t, rr)["code"])
	})

	t.Run("basic credentials do not hide the access token header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/secure-data", nil)
		req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		req.Header.Set("X-Access-Token", api.provider.Token(t, authtest.Claims{Subject: "auth0|x"}))
		rr := httptest.NewRecorder()
		api.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

// =========================================================================
// GRAPHQL
// =========================================================================

func TestGraphQL_MissingQuery(t *testing.T) {
	api := newTestAPI(t)

	for name, body := range map[string]any{
		"empty object": map[string]any{},
		"blank query":  map[string]any{"query": "  "},
	} {
		t.Run(name, func(t *testing.T) {
			rr := api.graphql(t, "", body)
			assert.Equal(t, http.StatusOK, rr.Code)
			got := decode[gqlBody](t, rr)
			assert.Equal(t, []string{"Must provide query string."}, got.Errors)
			assert.Nil(t, got.Data)
		})
	}
}

func TestGraphQL_ErrorsAreStrings(t *testing.T) {
	api := newTestAPI(t)

	rr := api.graphql(t, "", map[string]any{"query": "{ noSuchField }"})
	assert.Equal(t, http.StatusOK, rr.Code)

	var raw map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&raw))
	errs, ok := raw["errors"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, errs)
	_, isString := errs[0].(string)
	assert.True(t, isString)
}

func TestGraphQL_SyncUser(t *testing.T) {
	api := newTestAPI(t)

	rr := api.graphql(t, "", map[string]any{
		"query": `mutation SyncUser($email: String!, $username: String!, $auth0Id: String!) {
		  syncUser(email: $email, username: $username, auth0Id: $auth0Id) { ok }
		}`,
		"variables":     map[string]any{"email": "a@example.com", "username": "alice", "auth0Id": "auth0|123"},
		"operationName": "SyncUser",
	})

	assert.Equal(t, http.StatusOK, rr.Code)
	got := decode[gqlBody](t, rr)
	assert.Empty(t, got.Errors)
	assert.Equal(t, map[string]any{"ok": true}, got.Data["syncUser"])
}

const assignMutation = `mutation { assignConversation(conversationId: 1) { ok conversation { status } } }`

func createConversation(t *testing.T, api *testAPI, token string) {
	t.Helper()
	rr := api.graphql(t, token, map[string]any{
		"query": `mutation { createConversation(challengePublicId: "x", topic: "Help", firstPost: "hi") { ok } }`,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, map[string]any{"ok": true}, decode[gqlBody](t, rr).Data["createConversation"])
}

func TestGraphQL_AssignRequiresCredentials(t *testing.T) {
	api := newTestAPI(t)
	createConversation(t, api, "")

	rr := api.graphql(t, "", map[string]any{"query": assignMutation})

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, map[string]string{
		"code":        "authorization_header_missing",
		"description": "Authorization header expected",
	}, decode[map[string]string](t, rr))
}

func TestGraphQL_AssignForbiddenWithoutRole(t *testing.T) {
	api := newTestAPI(t)
	createConversation(t, api, "")
	token := api.provider.Token(t, authtest.Claims{Subject: "auth0|user"})

	rr := api.graphql(t, token, map[string]any{"query": assignMutation})

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, map[string]string{
		"code":        "forbidden",
		"description": "Only support agents can assign conversations",
	}, decode[map[string]string](t, rr))
}

func TestGraphQL_AssignWithExpiredToken(t *testing.T) {
	api := newTestAPI(t)
	createConversation(t, api, "")
	token := api.provider.Token(t, authtest.Claims{
		Subject:   "auth0|agent",
		Roles:     []string{model.RoleSupportAdmin},
		ExpiresIn: -time.Minute,
	})

	rr := api.graphql(t, token, map[string]any{"query": assignMutation})

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, map[string]string{
		"code":        "token_expired",
		"description": "Token expired.",
	}, decode[map[string]string](t, rr))
}

func TestGraphQL_AssignAsAgent(t *testing.T) {
	api := newTestAPI(t)
	createConversation(t, api, "")
	token := api.provider.Token(t, authtest.Claims{
		Subject: "auth0|agent",
		Email:   "agent@support.test",
		Roles:   []string{model.RoleSupportAdmin},
	})

	rr := api.graphql(t, token, map[string]any{"query": assignMutation})

	assert.Equal(t, http.StatusOK, rr.Code)
	got := decode[gqlBody](t, rr)
	assert.Empty(t, got.Errors)
	assert.Equal(t, map[string]any{"ok": true, "conversation": map[string]any{"status": "ASSIGNED"}},
		got.Data["assignConversation"])
}

func TestGraphQL_AnonymousMutationsDoNotFetchKeys(t *testing.T) {
	api := newTestAPI(t)

	createConversation(t, api, "")
	assert.Zero(t, api.provider.Fetches())
}

func TestGraphQL_InvalidTokenIsAnonymousForOptionalAuth(t *testing.T) {
	api := newTestAPI(t)

	// An expired token on an operation that only optionally needs an
	// identity is ignored rather than rejected.
	token := api.provider.Token(t, authtest.Claims{Subject: "auth0|x", ExpiresIn: -time.Minute})
	createConversation(t, api, token)
}
