package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sakif/support-desk/internal/apperror"
	"github.com/sakif/support-desk/internal/auth"
	"github.com/sakif/support-desk/internal/model"
	"github.com/sakif/support-desk/internal/repository"
)

const (
	MaxTopicLength       = 255
	MaxCategoryLength    = 100
	MaxDisplayNameLength = 120

	// IdentifierPrefix starts every conversation identifier.
	IdentifierPrefix = "CONV_"

	// fallbackDisplayName labels a first post when nobody is known.
	fallbackDisplayName = "User"

	// identifierAttempts bounds retries after an identifier collision.
	identifierAttempts = 5
)

// Authorization messages returned to support agents.
const (
	msgAssignForbidden = "Only support agents can assign conversations"
	msgStatusForbidden = "Only support agents can change status."
	msgMissingUser     = "Missing user context"
)

// NewIdentifier returns "CONV_" followed by eight random upper-case hex digits.
func NewIdentifier() string {
	id := uuid.New()
	return IdentifierPrefix + strings.ToUpper(hex.EncodeToString(id[:4]))
}

// CreateConversationInput carries the createConversation arguments.
// Nil pointers are arguments the client left out.
type CreateConversationInput struct {
	ChallengePublicID string
	Topic             string
	Category          *string
	FirstPost         *string
	AuthorDisplayName *string
}

// ConversationService owns the support conversation lifecycle.
type ConversationService struct {
	store         repository.Store
	logger        *slog.Logger
	newIdentifier func() string
}

func NewConversationService(store repository.Store, logger *slog.Logger) *ConversationService {
	return &ConversationService{
		store:         store,
		logger:        logger,
		newIdentifier: NewIdentifier,
	}
}

// CreateConversation opens a conversation and, when firstPost has content,
// its first post, in one transaction.
//
// An unknown challenge is not an error: the conversation is simply not
// linked to one.
func (s *ConversationService) CreateConversation(ctx context.Context, in CreateConversationInput, caller *auth.Identity) (*model.Conversation, error) {
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		return nil, apperror.ValidationFailed("topic", "Topic cannot be empty")
	}
	if utf8.RuneCountInString(topic) > MaxTopicLength {
		return nil, apperror.ValidationFailed("topic",
			fmt.Sprintf("Topic must be at most %d characters", MaxTopicLength))
	}

	category := model.DefaultCategory
	if in.Category != nil {
		if c := strings.TrimSpace(*in.Category); c != "" {
			category = c
		}
	}
	if utf8.RuneCountInString(category) > MaxCategoryLength {
		return nil, apperror.ValidationFailed("category",
			fmt.Sprintf("Category must be at most %d characters", MaxCategoryLength))
	}

	conv := &model.Conversation{
		Topic:    topic,
		Category: &category,
		Status:   model.StatusOpen,
	}

	err := s.store.InTx(ctx, func(tx repository.Repository) error {
		challenge, err := tx.GetChallengeByPublicID(ctx, in.ChallengePublicID)
		switch {
		case err == nil:
			conv.ChallengeID = &challenge.ID
		case !errors.Is(err, apperror.ErrNotFound):
			return err
		}

		creator, err := existingUser(ctx, tx, caller)
		if err != nil {
			return err
		}
		if creator != nil {
			conv.CreatedByUserID = &creator.ID
		}

		if err := s.insertWithIdentifier(ctx, tx, conv); err != nil {
			return err
		}

		if in.FirstPost == nil || strings.TrimSpace(*in.FirstPost) == "" {
			return nil
		}

		display := displayName(in.AuthorDisplayName, caller, fallbackDisplayName)
		post := &model.Post{
			ConversationID:    conv.ID,
			Content:           strings.TrimSpace(*in.FirstPost),
			AuthorDisplayName: display,
		}
		if creator != nil {
			post.AuthorUserID = &creator.ID
		}
		return tx.CreatePost(ctx, post)
	})
	if err != nil {
		s.logger.Error("failed to create conversation",
			slog.String("challenge", in.ChallengePublicID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Info("conversation created",
		slog.Int64("id", conv.ID),
		slog.String("identifier", conv.Identifier),
	)
	return conv, nil
}

func (s *ConversationService) insertWithIdentifier(ctx context.Context, tx repository.Repository, conv *model.Conversation) error {
	var err error
	for range identifierAttempts {
		conv.Identifier = s.newIdentifier()
		err = tx.CreateConversation(ctx, conv)
		if !errors.Is(err, apperror.ErrConflict) {
			return err
		}
		s.logger.Warn("conversation identifier collision", slog.String("identifier", conv.Identifier))
	}
	return fmt.Errorf("no free conversation identifier after %d attempts: %w", identifierAttempts, err)
}

// AssignConversation assigns the conversation to the calling agent, creating
// a local user for the agent on first contact.
func (s *ConversationService) AssignConversation(ctx context.Context, conversationID int64, roles []string, caller *auth.Identity) (*model.Conversation, error) {
	if !hasRole(roles, model.RoleSupportAdmin) {
		return nil, apperror.Forbidden(msgAssignForbidden)
	}
	if caller == nil || caller.Subject == "" {
		return nil, apperror.Forbidden(msgMissingUser)
	}

	var conv *model.Conversation
	err := s.store.InTx(ctx, func(tx repository.Repository) error {
		agent, err := s.resolveAgent(ctx, tx, caller)
		if err != nil {
			return err
		}

		if err := tx.AssignConversation(ctx, conversationID, agent.ID); err != nil {
			return err
		}
		conv, err = tx.GetConversation(ctx, conversationID)
		return err
	})
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("failed to assign conversation",
				slog.Int64("id", conversationID),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("assigning conversation %d: %w", conversationID, err)
	}

	s.logger.Info("conversation assigned",
		slog.Int64("id", conv.ID),
		slog.Int64("assignee", *conv.AssignedToUserID),
	)
	return conv, nil
}

// resolveAgent finds the local user for caller or creates one, then merges
// profile details the token knows better.
func (s *ConversationService) resolveAgent(ctx context.Context, tx repository.Repository, caller *auth.Identity) (*model.User, error) {
	user, err := tx.GetUserBySubject(ctx, caller.Subject)
	if errors.Is(err, apperror.ErrNotFound) {
		return s.createAgent(ctx, tx, caller)
	}
	if err != nil {
		return nil, err
	}

	changed := false
	if user.Name == nil && caller.Name != "" {
		name := caller.Name
		user.Name = &name
		changed = true
	}

	if caller.Email != "" && user.HasPlaceholderEmail() && user.Email != caller.Email {
		taken, err := tx.EmailInUse(ctx, caller.Email, user.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			s.logger.Info("keeping placeholder email; token email belongs to another user",
				slog.Int64("user", user.ID),
			)
		} else {
			user.Email = caller.Email
			changed = true
		}
	}

	if changed {
		if err := tx.UpdateUser(ctx, user); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (s *ConversationService) createAgent(ctx context.Context, tx repository.Repository, caller *auth.Identity) (*model.User, error) {
	source := caller.Subject
	for _, v := range []string{caller.Nickname, caller.Name, caller.Email} {
		if v != "" {
			source = v
			break
		}
	}
	username, _, _ := strings.Cut(source, "@")
	if username == "" {
		username = caller.Subject
	}

	email := caller.Email
	if email != "" {
		taken, err := tx.EmailInUse(ctx, email, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			email = ""
		}
	}
	if email == "" {
		email = model.PlaceholderEmail(caller.Subject)
	}

	user := &model.User{
		Subject:  caller.Subject,
		Email:    email,
		Username: username,
		Roles:    []string{},
	}
	if caller.Name != "" {
		name := caller.Name
		user.Name = &name
	}

	if err := tx.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("support agent user created",
		slog.Int64("user", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// AddPost appends a reply. The author is linked only when the caller
// already has a local user; replies never create users.
func (s *ConversationService) AddPost(ctx context.Context, conversationID int64, content string, authorDisplayName *string, caller *auth.Identity) (*model.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "Reply content cannot be empty")
	}

	post := &model.Post{
		ConversationID:    conversationID,
		Content:           content,
		AuthorDisplayName: displayName(authorDisplayName, caller, ""),
	}

	err := s.store.InTx(ctx, func(tx repository.Repository) error {
		if _, err := tx.GetConversation(ctx, conversationID); err != nil {
			return err
		}

		author, err := existingUser(ctx, tx, caller)
		if err != nil {
			return err
		}
		if author != nil {
			post.AuthorUserID = &author.ID
		}
		return tx.CreatePost(ctx, post)
	})
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("failed to add post",
				slog.Int64("conversation", conversationID),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("adding post: %w", err)
	}

	s.logger.Info("post added",
		slog.Int64("conversation", conversationID),
		slog.Int64("post", post.ID),
	)
	return post, nil
}

// UpdateStatus moves a conversation to status. Only support agents may.
func (s *ConversationService) UpdateStatus(ctx context.Context, conversationID int64, status string, roles []string) (*model.Conversation, error) {
	if !hasRole(roles, model.RoleSupportAdmin) {
		return nil, apperror.Forbidden(msgStatusForbidden)
	}

	st, ok := model.ParseStatus(status)
	if !ok {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("Unknown status %q", status))
	}

	var conv *model.Conversation
	err := s.store.InTx(ctx, func(tx repository.Repository) error {
		if err := tx.UpdateConversationStatus(ctx, conversationID, st); err != nil {
			return err
		}
		var err error
		conv, err = tx.GetConversation(ctx, conversationID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("updating conversation %d status: %w", conversationID, err)
	}

	s.logger.Info("conversation status changed",
		slog.Int64("id", conversationID),
		slog.String("status", string(st)),
	)
	return conv, nil
}

// ===== READS =====

func (s *ConversationService) Get(ctx context.Context, id int64) (*model.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// ListByChallenge returns every conversation linked to the challenge,
// newest first.
func (s *ConversationService) ListByChallenge(ctx context.Context, challengePublicID string) ([]model.Conversation, error) {
	convs, _, err := s.store.ListConversations(ctx,
		repository.ConversationFilter{ChallengePublicID: challengePublicID}, repository.ListOptions{})
	return convs, err
}

// ListPaged filters and pages conversations. An unknown status string is
// treated as a validation error rather than silently matching nothing.
func (s *ConversationService) ListPaged(ctx context.Context, filter repository.ConversationFilter, page, pageSize int) (Page[model.Conversation], error) {
	if filter.Status != "" {
		st, ok := model.ParseStatus(string(filter.Status))
		if !ok {
			return Page[model.Conversation]{}, apperror.ValidationFailed("status",
				fmt.Sprintf("Unknown status %q", filter.Status))
		}
		filter.Status = st
	}
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Search = strings.TrimSpace(filter.Search)

	items, total, err := s.store.ListConversations(ctx, filter, pageOptions(page, pageSize))
	if err != nil {
		return Page[model.Conversation]{}, err
	}
	return Page[model.Conversation]{Items: items, Total: total}, nil
}

func (s *ConversationService) Posts(ctx context.Context, conversationID int64) ([]model.Post, error) {
	return s.store.ListPosts(ctx, conversationID)
}

func (s *ConversationService) Categories(ctx context.Context) ([]string, error) {
	return s.store.ListConversationCategories(ctx)
}

func (s *ConversationService) AssignedUsers(ctx context.Context) ([]model.User, error) {
	return s.store.ListAssignedUsers(ctx)
}

// ===== HELPERS =====

func hasRole(roles []string, role string) bool {
	return slices.Contains(roles, role)
}

// existingUser looks up caller's local user without creating one.
func existingUser(ctx context.Context, tx repository.Repository, caller *auth.Identity) (*model.User, error) {
	if caller == nil || caller.Subject == "" {
		return nil, nil
	}
	user, err := tx.GetUserBySubject(ctx, caller.Subject)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

// displayName resolves a post's display name: the explicit argument when
// it is non-blank, then the caller's display name, then fallback. An empty
// result is stored as NULL.
func displayName(explicit *string, caller *auth.Identity, fallback string) *string {
	name := ""
	if explicit != nil {
		name = strings.TrimSpace(*explicit)
	}
	if name == "" {
		name = caller.DisplayName()
	}
	if name == "" {
		name = fallback
	}
	if name == "" {
		return nil
	}
	name = truncate(name, MaxDisplayNameLength)
	return &name
}
