package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/support-desk/internal/apperror"
	"github.com/sakif/support-desk/internal/model"
	"github.com/sakif/support-desk/internal/repository"
)

// SyncUserInput carries the syncUser arguments.
type SyncUserInput struct {
	Email    string
	Username string
	Subject  string
	Name     *string
}

// UserService keeps local users in step with the identity provider.
type UserService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewUserService(store repository.Store, logger *slog.Logger) *UserService {
	return &UserService{store: store, logger: logger}
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// SyncUser upserts a user keyed by email. Name defaults to the username.
// Roles are never touched here; new users start with none.
//
// A subject already linked to a different real email is a conflict. A
// subject linked to a placeholder email, as left by an agent's first
// assignment, takes over the synced email when no other user holds it.
func (s *UserService) SyncUser(ctx context.Context, in SyncUserInput) (*model.User, error) {
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)
	subject := strings.TrimSpace(in.Subject)

	switch {
	case email == "":
		return nil, apperror.ValidationFailed("email", "Email is required")
	case username == "":
		return nil, apperror.ValidationFailed("username", "Username is required")
	case subject == "":
		return nil, apperror.ValidationFailed("auth0Id", "Auth0 id is required")
	}

	name := username
	if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
		name = strings.TrimSpace(*in.Name)
	}

	var user *model.User
	err := s.store.InTx(ctx, func(tx repository.Repository) error {
		var linked *model.User
		bySubject, err := tx.GetUserBySubject(ctx, subject)
		switch {
		case err == nil:
			linked = bySubject
		case !errors.Is(err, apperror.ErrNotFound):
			return err
		}
		if linked != nil && linked.Email != email && !linked.HasPlaceholderEmail() {
			return apperror.Conflict("user", subject)
		}

		existing, err := tx.GetUserByEmail(ctx, email)
		switch {
		case errors.Is(err, apperror.ErrNotFound) && linked != nil:
			s.logger.Info("replacing placeholder email",
				slog.Int64("id", linked.ID),
				slog.String("email", email),
			)
			existing = linked
			existing.Email = email
		case errors.Is(err, apperror.ErrNotFound):
			user = &model.User{
				Subject:  subject,
				Email:    email,
				Username: username,
				Name:     &name,
				Roles:    []string{},
			}
			return tx.CreateUser(ctx, user)
		case err != nil:
			return err
		case linked != nil && linked.ID != existing.ID:
			return apperror.Conflict("user", subject)
		}

		existing.Username = username
		existing.Subject = subject
		existing.Name = &name
		user = existing
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("failed to sync user",
				slog.String("email", email),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("syncing user: %w", err)
	}

	s.logger.Info("user synced",
		slog.Int64("id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}
