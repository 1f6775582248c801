package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/support-desk/internal/model"
	"github.com/sakif/support-desk/internal/repository"
)

// ChallengeService serves challenge catalogue reads.
type ChallengeService struct {
	repo   repository.ChallengeRepository
	logger *slog.Logger
}

func NewChallengeService(repo repository.ChallengeRepository, logger *slog.Logger) *ChallengeService {
	return &ChallengeService{repo: repo, logger: logger}
}

func normalizeChallengeFilter(search, tag string) repository.ChallengeFilter {
	return repository.ChallengeFilter{
		Search: strings.TrimSpace(search),
		Tag:    strings.TrimSpace(tag),
	}
}

// List returns every matching challenge, highest points first.
func (s *ChallengeService) List(ctx context.Context, search, tag string) ([]model.Challenge, error) {
	items, _, err := s.repo.ListChallenges(ctx, normalizeChallengeFilter(search, tag), repository.ListOptions{})
	return items, err
}

func (s *ChallengeService) ListPaged(ctx context.Context, search, tag string, page, pageSize int) (Page[model.Challenge], error) {
	items, total, err := s.repo.ListChallenges(ctx, normalizeChallengeFilter(search, tag), pageOptions(page, pageSize))
	if err != nil {
		return Page[model.Challenge]{}, err
	}
	return Page[model.Challenge]{Items: items, Total: total}, nil
}

func (s *ChallengeService) Get(ctx context.Context, publicID string) (*model.Challenge, error) {
	return s.repo.GetChallengeByPublicID(ctx, strings.TrimSpace(publicID))
}

func (s *ChallengeService) GetByID(ctx context.Context, id int64) (*model.Challenge, error) {
	return s.repo.GetChallengeByID(ctx, id)
}

func (s *ChallengeService) Tags(ctx context.Context) ([]model.Tag, error) {
	return s.repo.ListTags(ctx)
}

func (s *ChallengeService) ChallengeTags(ctx context.Context, challengeID int64) ([]model.Tag, error) {
	return s.repo.ListChallengeTags(ctx, challengeID)
}

func (s *ChallengeService) Hints(ctx context.Context, challengeID int64) ([]model.ChallengeHint, error) {
	return s.repo.ListHints(ctx, challengeID)
}

func (s *ChallengeService) LearningObjectives(ctx context.Context, challengeID int64) ([]model.LearningObjective, error) {
	return s.repo.ListLearningObjectives(ctx, challengeID)
}
