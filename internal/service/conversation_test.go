package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/support-desk/internal/apperror"
	"github.com/sakif/support-desk/internal/auth"
	"github.com/sakif/support-desk/internal/model"
	"github.com/sakif/support-desk/internal/repository"
	"github.com/sakif/support-desk/internal/repository/sqlite"
)

var agentRoles = []string{model.RoleSupportAdmin}

func newConversationService(t *testing.T) (*ConversationService, *sqlite.DB) {
	t.Helper()
	db := newTestStore(t)
	return NewConversationService(db, testLogger()), db
}

// =========================================================================
// CREATE CONVERSATION
// =========================================================================

func TestCreateConversation_Validation(t *testing.T) {
	svc, _ := newConversationService(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		in        CreateConversationInput
		wantField string
	}{
		{"empty topic", CreateConversationInput{Topic: ""}, "topic"},
		{"blank topic", CreateConversationInput{Topic: "   \t"}, "topic"},
		{"topic too long", CreateConversationInput{Topic: strings.Repeat("é", MaxTopicLength+1)}, "topic"},
		{"category too long", CreateConversationInput{Topic: "ok", Category: ptr(strings.Repeat("c", MaxCategoryLength+1))}, "category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateConversation(ctx, tt.in, nil)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}
}

func TestCreateConversation_Messages(t *testing.T) {
	svc, _ := newConversationService(t)
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: " "}, nil)
	assert.EqualError(t, err, "Topic cannot be empty")

	_, err = svc.CreateConversation(ctx, CreateConversationInput{Topic: strings.Repeat("x", 256)}, nil)
	assert.EqualError(t, err, "Topic must be at most 255 characters")

	_, err = svc.CreateConversation(ctx, CreateConversationInput{Topic: "ok", Category: ptr(strings.Repeat("x", 101))}, nil)
	assert.EqualError(t, err, "Category must be at most 100 characters")
}

func TestCreateConversation_Defaults(t *testing.T) {
	svc, h := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, CreateConversationInput{
		ChallengePublicID: "does-not-exist",
		Topic:             "  Need help  ",
		Category:          ptr("   "),
	}, nil)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^CONV_[0-9A-F]{8}$`), conv.Identifier)
	assert.Equal(t, "Need help", conv.Topic)
	assert.Equal(t, model.StatusOpen, conv.Status)
	require.NotNil(t, conv.Category)
	assert.Equal(t, model.DefaultCategory, *conv.Category)
	assert.Nil(t, conv.ChallengeID, "unknown challenge leaves the conversation unlinked")
	assert.Nil(t, conv.CreatedByUserID)

	posts, err := h.ListPosts(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, posts, "no first post was given")
}

func TestCreateConversation_TopicAtLimit(t *testing.T) {
	svc, _ := newConversationService(t)

	conv, err := svc.CreateConversation(context.Background(), CreateConversationInput{
		Topic: strings.Repeat("é", MaxTopicLength),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, MaxTopicLength, len([]rune(conv.Topic)))
}

func TestCreateConversation_LinksChallengeAndFirstPost(t *testing.T) {
	svc, h := newConversationService(t)
	ctx := context.Background()
	ch := seedChallenge(t, h, "py-101", 10)

	conv, err := svc.CreateConversation(ctx, CreateConversationInput{
		ChallengePublicID: "py-101",
		Topic:             "Stuck on loops",
		Category:          ptr(" Python "),
		FirstPost:         ptr("  How do I exit a loop?  "),
		AuthorDisplayName: ptr("Alice"),
	}, nil)
	require.NoError(t, err)

	require.NotNil(t, conv.ChallengeID)
	assert.Equal(t, ch.ID, *conv.ChallengeID)
	assert.Equal(t, "Python", *conv.Category)

	posts, err := h.ListPosts(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "How do I exit a loop?", posts[0].Content)
	require.NotNil(t, posts[0].AuthorDisplayName)
	assert.Equal(t, "Alice", *posts[0].AuthorDisplayName)
	assert.Nil(t, posts[0].AuthorUserID)
}

func TestCreateConversation_FirstPostDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		explicit *string
		caller   *auth.Identity
		want     string
	}{
		{"explicit wins", ptr("Explicit"), &auth.Identity{Subject: "s", Name: "Token Name"}, "Explicit"},
		{"blank explicit falls back to caller name", ptr("  "), &auth.Identity{Subject: "s", Name: "Token Name"}, "Token Name"},
		{"caller nickname", nil, &auth.Identity{Subject: "s", Nickname: "nick"}, "nick"},
		{"caller email", nil, &auth.Identity{Subject: "s", Email: "e@x.test"}, "e@x.test"},
		{"nobody", nil, nil, "User"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, h := newConversationService(t)
			ctx := context.Background()

			conv, err := svc.CreateConversation(ctx, CreateConversationInput{
				Topic:             "t",
				FirstPost:         ptr("hello"),
				AuthorDisplayName: tt.explicit,
			}, tt.caller)
			require.NoError(t, err)

			posts, err := h.ListPosts(ctx, conv.ID)
			require.NoError(t, err)
			require.Len(t, posts, 1)
			require.NotNil(t, posts[0].AuthorDisplayName)
			assert.Equal(t, tt.want, *posts[0].AuthorDisplayName)
		})
	}
}

func TestCreateConversation_RecordsKnownCreator(t *testing.T) {
	svc, h := newConversationService(t)
	ctx := context.Background()
	alice := seedUser(t, h, model.User{Subject: "auth0|alice", Email: "alice@x.test", Username: "alice"})

	conv, err := svc.CreateConversation(ctx, CreateConversationInput{
		Topic:     "t",
		FirstPost: ptr("hi"),
	}, &auth.Identity{Subject: "auth0|alice"})
	require.NoError(t, err)

	require.NotNil(t, conv.CreatedByUserID)
	assert.Equal(t, alice.ID, *conv.CreatedByUserID)

	posts, _ := h.ListPosts(ctx, conv.ID)
	require.Len(t, posts, 1)
	require.NotNil(t, posts[0].AuthorUserID)
	assert.Equal(t, alice.ID, *posts[0].AuthorUserID)
}

func TestCreateConversation_RetriesIdentifierCollision(t *testing.T) {
	svc, _ := newConversationService(t)
	ctx := context.Background()

	ids := []string{"CONV_AAAAAAAA", "CONV_AAAAAAAA", "CONV_BBBBBBBB"}
	svc.newIdentifier = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "one"}, nil)
	require.NoError(t, err)
	second, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "two"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "CONV_AAAAAAAA", first.Identifier)
	assert.Equal(t, "CONV_BBBBBBBB", second.Identifier)
}

func TestNewIdentifier_Format(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := NewIdentifier()
		assert.Regexp(t, `^CONV_[0-9A-F]{8}$`, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 45, "identifiers should be random")
}

// =========================================================================
// ASSIGN CONVERSATION
// =========================================================================

func TestAssignConversation_RequiresAgentRole(t *testing.T) {
	svc, _ := newConversationService(t)

	_, err := svc.AssignConversation(context.Background(), 1, []string{"reader"}, &auth.Identity{Subject: "auth0|x"})
	require.ErrorIs(t, err, apperror.ErrForbidden)
	assert.EqualError(t, err, "Only support agents can assign conversations")
}

func TestAssignConversation_RequiresSubject(t *testing.T) {
	svc, _ := newConversationService(t)

	for _, caller := range []*auth.Identity{nil, {Name: "no subject"}} {
		_, err := svc.AssignConversation(context.Background(), 1, agentRoles, caller)
		require.ErrorIs(t, err, apperror.ErrForbidden)
		assert.EqualError(t, err, "Missing user context")
	}
}

func TestAssignConversation_CreatesAgentUser(t *testing.T) {
	svc, h := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "t"}, nil)
	require.NoError(t, err)

	caller := &auth.Identity{Subject: "auth0|ada", Nickname: "ada.l@corp.test", Name: "Ada Lovelace"}
	assigned, err := svc.AssignConversation(ctx, conv.ID, agentRoles, caller)
	require.NoError(t, err)

	assert.Equal(t, model.StatusAssigned, assigned.Status)
	require.NotNil(t, assigned.AssignedToUserID)

	agent, err := h.GetUserBySubject(ctx, "auth0|ada")
	require.NoError(t, err)
	assert.Equal(t, *assigned.AssignedToUserID, agent.ID)
	assert.Equal(t, "ada.l", agent.Username, "username is cut at @")
	assert.Equal(t, "auth0_ada@example.com", agent.Email)
	require.NotNil(t, agent.Name)
	assert.Equal(t, "Ada Lovelace", *agent.Name)
	assert.Empty(t, agent.Roles, "roles are never granted through assignment")
}

func TestAssignConversation_UsernameSources(t *testing.T) {
	tests := []struct {
		name   string
		caller auth.Identity
		want   string
	}{
		{"nickname", auth.Identity{Subject: "auth0|1", Nickname: "nick", Name: "Name"}, "nick"},
		{"name", auth.Identity{Subject: "auth0|2", Name: "Name"}, "Name"},
		{"email", auth.Identity{Subject: "auth0|3", Email: "mail@x.test"}, "mail"},
		{"subject", auth.Identity{Subject: "auth0|4"}, "auth0|4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, h := newConversationService(t)
			ctx := context.Background()
			conv, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "t"}, nil)
			require.NoError(t, err)

			_, err = svc.AssignConversation(ctx, conv.ID, agentRoles, &tt.caller)
			require.NoError(t, err)

			u, err := h.GetUserBySubject(ctx, tt.caller.Subject)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.Username)
		})
	}
}

func TestAssignConversation_MergesProfile(t *testing.T) {
	svc, h := newConversationService(t)
	ctx := context.Background()
	store := h

	existing := seedUser(t, store, model.User{
		Subject:  "auth0|ada",
		Email:    "auth0_ada@example.com",
		Username: "ada",
	})
	conv, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "t"}, nil)
	require.NoError(t, err)

	_, err = svc.AssignConversation(ctx, conv.ID, agentRoles, &auth.Identity{
		Subject: "auth0|ada",
		Email:   "ada@corp.test",
		Name:    "Ada",
	})
	require.NoError(t, err)

	got, err := h.GetUserByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@corp.test", got.Email, "placeholder email is upgraded")
	require.NotNil(t, got.Name)
	assert.Equal(t, "Ada", *got.Name)
}

func TestAssignConversation_KeepsRealEmailAndName(t *testing.T) {
	svc, h := newConversationService(t)
	ctx := context.Background()

	existing := seedUser(t, h, model.User{
		Subject:  "auth0|ada",
		Email:    "ada@old.test",
		Username: "ada",
		Name:     ptr("Old Name"),
	})
	conv, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "t"}, nil)
	require.NoError(t, err)

	_, err = svc.AssignConversation(ctx, conv.ID, agentRoles, &auth.Identity{
		Subject: "auth0|ada",
		Email:   "ada@new.test",
		Name:    "New Name",
	})
	require.NoError(t, err)

	got, _ := h.GetUserByID(ctx, existing.ID)
	assert.Equal(t, "ada@old.test", got.Email)
	assert.Equal(t, "Old Name", *got.Name)
}

func TestAssignConversation_EmailTakenKeepsPlaceholder(t *testing.T) {
	svc, h := newConversationService(t)
	ctx := context.Background()
	store := h

	seedUser(t, store, model.User{Email: "ada@corp.test", Username: "someone-else"})
	agent := seedUser(t, store, model.User{Subject: "auth0|ada", Email: "auth0_ada@example.com", Username: "ada"})
	conv, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "t"}, nil)
	require.NoError(t, err)

	_, err = svc.AssignConversation(ctx, conv.ID, agentRoles, &auth.Identity{Subject: "auth0|ada", Email: "ada@corp.test"})
	require.NoError(t, err, "a taken email is skipped, not reported")

	got, _ := h.GetUserByID(ctx, agent.ID)
	assert.Equal(t, "auth0_ada@example.com", got.Email)
}

func TestAssignConversation_NewAgentWithTakenEmailGetsPlaceholder(t *testing.T) {
	svc, h := newConversationService(t)
	ctx := context.Background()

	seedUser(t, h, model.User{Email: "ada@corp.test", Username: "someone-else"})
	conv, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "t"}, nil)
	require.NoError(t, err)

	_, err = svc.AssignConversation(ctx, conv.ID, agentRoles, &auth.Identity{Subject: "auth0|ada", Email: "ada@corp.test"})
	require.NoError(t, err)

	u, err := h.GetUserBySubject(ctx, "auth0|ada")
	require.NoError(t, err)
	assert.Equal(t, "auth0_ada@example.com", u.Email)
}

func TestAssignConversation_NotFoundRollsBackUser(t *testing.T) {
	svc, h := newConversationService(t)
	ctx := context.Background()

	_, err := svc.AssignConversation(ctx, 404, agentRoles, &auth.Identity{Subject: "auth0|ghost"})
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "Conversation not found", apperror.Message(err, ""))

	_, err = h.GetUserBySubject(ctx, "auth0|ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound, "the agent user must not outlive the failed assignment")
}

func TestAssignConversation_ReassignFromAnyStatus(t *testing.T) {
	svc, _ := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "t"}, nil)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, conv.ID, "closed", agentRoles)
	require.NoError(t, err)

	first, err := svc.AssignConversation(ctx, conv.ID, agentRoles, &auth.Identity{Subject: "auth0|a"})
	require.NoError(t, err)
	second, err := svc.AssignConversation(ctx, conv.ID, agentRoles, &auth.Identity{Subject: "auth0|b"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusAssigned, second.Status)
	assert.NotEqual(t, *first.AssignedToUserID, *second.AssignedToUserID)
}

// =========================================================================
// ADD POST
// =========================================================================

func TestAddPost_Validation(t *testing.T) {
	svc, _ := newConversationService(t)

	_, err := svc.AddPost(context.Background(), 1, "  \n ", nil, nil)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.EqualError(t, err, "Reply content cannot be empty")
}

func TestAddPost_ConversationNotFound(t *testing.T) {
	svc, _ := newConversationService(t)

	_, err := svc.AddPost(context.Background(), 404, "hello", nil, nil)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "Conversation not found", apperror.Message(err, ""))
}

func TestAddPost_Attribution(t *testing.T) {
	svc, h := newConversationService(t)
	ctx := context.Background()
	bob := seedUser(t, h, model.User{Subject: "auth0|bob", Email: "bob@x.test", Username: "bob"})

	conv, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "t"}, nil)
	require.NoError(t, err)

	post, err := svc.AddPost(ctx, conv.ID, "  reply  ", nil, &auth.Identity{Subject: "auth0|bob", Name: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "reply", post.Content)
	require.NotNil(t, post.AuthorUserID)
	assert.Equal(t, bob.ID, *post.AuthorUserID)
	assert.Equal(t, "Bob", *post.AuthorDisplayName)
}

func TestAddPost_NeverCreatesUsers(t *testing.T) {
	svc, h := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "t"}, nil)
	require.NoError(t, err)

	post, err := svc.AddPost(ctx, conv.ID, "reply", ptr("Stranger"), &auth.Identity{Subject: "auth0|unknown"})
	require.NoError(t, err)
	assert.Nil(t, post.AuthorUserID)
	assert.Equal(t, "Stranger", *post.AuthorDisplayName)

	_, err = h.GetUserBySubject(ctx, "auth0|unknown")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAddPost_AnonymousHasNoDisplayName(t *testing.T) {
	svc, _ := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "t"}, nil)
	require.NoError(t, err)

	post, err := svc.AddPost(ctx, conv.ID, "reply", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, post.AuthorDisplayName)
}

func TestAddPost_LongDisplayNameIsTruncated(t *testing.T) {
	svc, _ := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "t"}, nil)
	require.NoError(t, err)

	post, err := svc.AddPost(ctx, conv.ID, "reply", ptr(strings.Repeat("n", 300)), nil)
	require.NoError(t, err)
	assert.Len(t, *post.AuthorDisplayName, MaxDisplayNameLength)
}

// =========================================================================
// STATUS & LISTINGS
// =========================================================================

func TestUpdateStatus(t *testing.T) {
	svc, _ := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "t"}, nil)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, conv.ID, "RESOLVED", nil)
	require.ErrorIs(t, err, apperror.ErrForbidden)
	assert.EqualError(t, err, "Only support agents can change status.")

	_, err = svc.UpdateStatus(ctx, conv.ID, "PENDING", agentRoles)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.UpdateStatus(ctx, 404, "RESOLVED", agentRoles)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	updated, err := svc.UpdateStatus(ctx, conv.ID, " resolved ", agentRoles)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, updated.Status)
}

func TestListPaged(t *testing.T) {
	svc, _ := newConversationService(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := svc.CreateConversation(ctx, CreateConversationInput{Topic: "topic"}, nil)
		require.NoError(t, err)
	}

	page, err := svc.ListPaged(ctx, repository.ConversationFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 15, page.Total)
	assert.Len(t, page.Items, DefaultPageSize)

	page, err = svc.ListPaged(ctx, repository.ConversationFilter{}, 2, 12)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)

	page, err = svc.ListPaged(ctx, repository.ConversationFilter{Status: "open"}, 1, 500)
	require.NoError(t, err)
	assert.Len(t, page.Items, 15, "page size is clamped to the maximum, not rejected")

	_, err = svc.ListPaged(ctx, repository.ConversationFilter{Status: "bogus"}, 1, 12)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestPageOptions(t *testing.T) {
	tests := []struct {
		page, size         int
		wantLimit, wantOff int
	}{
		{1, 12, 12, 0},
		{3, 10, 10, 20},
		{0, 0, DefaultPageSize, 0},
		{-2, 5, 5, 0},
		{2, 1000, MaxPageSize, MaxPageSize},
	}
	for _, tt := range tests {
		got := pageOptions(tt.page, tt.size)
		assert.Equal(t, tt.wantLimit, got.Limit, "page=%d size=%d", tt.page, tt.size)
		assert.Equal(t, tt.wantOff, got.Offset, "page=%d size=%d", tt.page, tt.size)
	}
}
