// Package repository declares the storage contracts used by the service
// layer. Implementations live in subpackages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/support-desk/internal/model"
)

// ListOptions pages a listing. A zero Limit means no limit.
type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserBySubject(ctx context.Context, subject string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// EmailInUse reports whether a user other than exceptID owns email.
	EmailInUse(ctx context.Context, email string, exceptID int64) (bool, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUser(ctx context.Context, user *model.User) error
}

// ChallengeFilter narrows challenge listings. Empty fields match everything.
type ChallengeFilter struct {
	Search string // case-insensitive substring of title or description
	Tag    string // exact tag name
}

// ChallengeImport is one challenge with its owned collections, as read from
// a seed file.
type ChallengeImport struct {
	Challenge          model.Challenge
	Tags               []string
	Hints              []string
	LearningObjectives []string
}

type ChallengeRepository interface {
	GetChallengeByID(ctx context.Context, id int64) (*model.Challenge, error)
	GetChallengeByPublicID(ctx context.Context, publicID string) (*model.Challenge, error)
	ListChallenges(ctx context.Context, filter ChallengeFilter, opts ListOptions) ([]model.Challenge, int, error)
	DeleteChallenge(ctx context.Context, id int64) error

	ListTags(ctx context.Context) ([]model.Tag, error)
	ListChallengeTags(ctx context.Context, challengeID int64) ([]model.Tag, error)
	ListHints(ctx context.Context, challengeID int64) ([]model.ChallengeHint, error)
	ListLearningObjectives(ctx context.Context, challengeID int64) ([]model.LearningObjective, error)

	// UpsertChallenge inserts or updates by public id and replaces hints,
	// objectives and tag links. It fills in.Challenge.ID.
	UpsertChallenge(ctx context.Context, in *ChallengeImport) error
}

// ConversationFilter narrows conversation listings. Nil or empty fields
// match everything.
type ConversationFilter struct {
	Status            model.Status
	Category          string
	Search            string // case-insensitive substring of topic
	ChallengePublicID string
	AssignedToUserID  *int64
}

type ConversationRepository interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id int64) (*model.Conversation, error)
	GetConversationByIdentifier(ctx context.Context, identifier string) (*model.Conversation, error)
	ListConversations(ctx context.Context, filter ConversationFilter, opts ListOptions) ([]model.Conversation, int, error)
	AssignConversation(ctx context.Context, id, userID int64) error
	UpdateConversationStatus(ctx context.Context, id int64, status model.Status) error
	ListConversationCategories(ctx context.Context) ([]string, error)
	ListAssignedUsers(ctx context.Context) ([]model.User, error)
	DeleteConversation(ctx context.Context, id int64) error

	CreatePost(ctx context.Context, post *model.Post) error
	ListPosts(ctx context.Context, conversationID int64) ([]model.Post, error)

	// UpsertConversation inserts or updates by identifier and replaces the
	// conversation's posts with posts.
	UpsertConversation(ctx context.Context, conv *model.Conversation, posts []model.Post) error
}

// Repository is everything a unit of work can touch.
type Repository interface {
	UserRepository
	ChallengeRepository
	ConversationRepository
}

// Store runs units of work. fn's Repository is bound to a single
// transaction; it is committed when fn returns nil and rolled back
// otherwise.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(tx Repository) error) error
}
