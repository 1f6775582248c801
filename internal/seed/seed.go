// Package seed bulk-loads challenges and support conversations from the
// JSON exports used to populate a fresh database.
//
// Both loaders are idempotent: challenges are keyed by public id and
// conversations by identifier, and a record's hints, learning objectives
// and posts are replaced rather than appended on every run.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/support-desk/internal/apperror"
	"github.com/sakif/support-desk/internal/model"
	"github.com/sakif/support-desk/internal/repository"
)

// DefaultChunkSize is the number of records written per transaction.
const DefaultChunkSize = 1000

// Column limits enforced by the schema.
const (
	maxTopic       = 255
	maxCategory    = 100
	maxDisplayName = 120
)

type challengeFile struct {
	Challenges []challengeRecord `json:"coding_challenges"`
}

type challengeRecord struct {
	ChallengeID        string   `json:"challenge_id"`
	Title              string   `json:"title"`
	Description        *string  `json:"description"`
	Category           *string  `json:"category"`
	Difficulty         *string  `json:"difficulty"`
	Points             *int64   `json:"points"`
	Tags               []string `json:"tags"`
	Hints              []string `json:"hints"`
	LearningObjectives []string `json:"learning_objectives"`
}

type conversationFile struct {
	Conversations []conversationRecord `json:"support_conversations"`
}

type conversationRecord struct {
	Identifier  string       `json:"identifier"`
	Topic       string       `json:"topic"`
	Category    *string      `json:"category"`
	Status      string       `json:"status"`
	Priority    *string      `json:"priority"`
	ChallengeID string       `json:"challenge_id"`
	Posts       []postRecord `json:"posts"`
}

type postRecord struct {
	User      *string `json:"user"`
	Content   string  `json:"content"`
	Timestamp string  `json:"timestamp"`
}

// Stats summarises one import.
type Stats struct {
	Records    int // records written
	Skipped    int // records missing a required field
	Tags       int // distinct tag names seen
	Hints      int
	Objectives int
	Posts      int
}

// Importer writes seed records through a repository.Store.
type Importer struct {
	store     repository.Store
	logger    *slog.Logger
	chunkSize int
	now       func() time.Time
}

// NewImporter returns an Importer committing every chunkSize records.
// A chunkSize below one means DefaultChunkSize.
func NewImporter(store repository.Store, logger *slog.Logger, chunkSize int) *Importer {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	return &Importer{store: store, logger: logger, chunkSize: chunkSize, now: time.Now}
}

// ImportChallengesFile loads a {"coding_challenges": [...]} file.
func (im *Importer) ImportChallengesFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("seed: opening %s: %w", path, err)
	}
	defer f.Close()
	return im.ImportChallenges(ctx, f)
}

// ImportConversationsFile loads a {"support_conversations": [...]} file.
func (im *Importer) ImportConversationsFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("seed: opening %s: %w", path, err)
	}
	defer f.Close()
	return im.ImportConversations(ctx, f)
}

// ImportChallenges upserts challenges with their tags, hints and learning
// objectives.
func (im *Importer) ImportChallenges(ctx context.Context, r io.Reader) (Stats, error) {
	var file challengeFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return Stats{}, fmt.Errorf("seed: decoding challenges: %w", err)
	}
	if len(file.Challenges) == 0 {
		im.logger.Warn("no coding_challenges found; skipping")
		return Stats{}, nil
	}

	var stats Stats
	tags := make(map[string]struct{})
	imports := make([]repository.ChallengeImport, 0, len(file.Challenges))

	for _, rec := range file.Challenges {
		publicID := strings.TrimSpace(rec.ChallengeID)
		title := strings.TrimSpace(rec.Title)
		if publicID == "" || title == "" {
			stats.Skipped++
			im.logger.Warn("skipping challenge without id or title", slog.String("challenge_id", publicID))
			continue
		}

		points := int64(0)
		if rec.Points != nil {
			points = *rec.Points
		}

		in := repository.ChallengeImport{
			Challenge: model.Challenge{
				PublicID:    publicID,
				Title:       title,
				Description: rec.Description,
				Category:    rec.Category,
				Difficulty:  rec.Difficulty,
				Points:      &points,
			},
			Tags:               nonBlank(rec.Tags),
			Hints:              nonBlank(rec.Hints),
			LearningObjectives: nonBlank(rec.LearningObjectives),
		}
		for _, t := range in.Tags {
			tags[t] = struct{}{}
		}
		stats.Hints += len(in.Hints)
		stats.Objectives += len(in.LearningObjectives)
		imports = append(imports, in)
	}
	stats.Tags = len(tags)

	err := im.inChunks(ctx, len(imports), func(tx repository.Repository, i int) error {
		return tx.UpsertChallenge(ctx, &imports[i])
	})
	if err != nil {
		return stats, fmt.Errorf("seed: importing challenges: %w", err)
	}
	stats.Records = len(imports)

	im.logger.Info("challenges imported",
		slog.Int("challenges", stats.Records),
		slog.Int("skipped", stats.Skipped),
		slog.Int("tags", stats.Tags),
		slog.Int("hints", stats.Hints),
		slog.Int("objectives", stats.Objectives),
	)
	return stats, nil
}

// ImportConversations upserts conversations and replaces their posts.
// Challenges are resolved by public id; an unknown one leaves the
// conversation unlinked.
func (im *Importer) ImportConversations(ctx context.Context, r io.Reader) (Stats, error) {
	var file conversationFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return Stats{}, fmt.Errorf("seed: decoding conversations: %w", err)
	}
	if len(file.Conversations) == 0 {
		im.logger.Warn("no support_conversations found; skipping")
		return Stats{}, nil
	}

	var stats Stats
	records := make([]conversationRecord, 0, len(file.Conversations))
	for _, rec := range file.Conversations {
		rec.Identifier = strings.TrimSpace(rec.Identifier)
		rec.Topic = strings.TrimSpace(rec.Topic)
		if rec.Identifier == "" || rec.Topic == "" {
			stats.Skipped++
			im.logger.Warn("skipping conversation without identifier or topic", slog.String("identifier", rec.Identifier))
			continue
		}
		records = append(records, rec)
	}

	err := im.inChunks(ctx, len(records), func(tx repository.Repository, i int) error {
		conv, posts := im.toConversation(records[i])

		if id := strings.TrimSpace(records[i].ChallengeID); id != "" {
			challenge, err := tx.GetChallengeByPublicID(ctx, id)
			switch {
			case err == nil:
				conv.ChallengeID = &challenge.ID
			case !errors.Is(err, apperror.ErrNotFound):
				return err
			}
		}

		if err := tx.UpsertConversation(ctx, conv, posts); err != nil {
			return err
		}
		stats.Posts += len(posts)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("seed: importing conversations: %w", err)
	}
	stats.Records = len(records)

	im.logger.Info("conversations imported",
		slog.Int("conversations", stats.Records),
		slog.Int("skipped", stats.Skipped),
		slog.Int("posts", stats.Posts),
	)
	return stats, nil
}

func (im *Importer) toConversation(rec conversationRecord) (*model.Conversation, []model.Post) {
	status, ok := model.ParseStatus(rec.Status)
	if !ok {
		if rec.Status != "" {
			im.logger.Warn("unknown status; importing as OPEN",
				slog.String("identifier", rec.Identifier),
				slog.String("status", rec.Status),
			)
		}
		status = model.StatusOpen
	}

	conv := &model.Conversation{
		Identifier: rec.Identifier,
		Topic:      truncate(rec.Topic, maxTopic),
		Category:   truncatePtr(rec.Category, maxCategory),
		Status:     status,
		Priority:   parsePriority(rec.Priority),
	}

	posts := make([]model.Post, 0, len(rec.Posts))
	for _, p := range rec.Posts {
		content := strings.TrimSpace(p.Content)
		if content == "" {
			continue
		}
		posts = append(posts, model.Post{
			Content:           content,
			AuthorDisplayName: truncatePtr(p.User, maxDisplayName),
			CreatedAt:         im.parseTimestamp(p.Timestamp),
		})
	}
	return conv, posts
}

// inChunks calls fn for every index in [0, n), committing one transaction
// per chunk. A failing chunk rolls back alone; earlier chunks stay.
func (im *Importer) inChunks(ctx context.Context, n int, fn func(tx repository.Repository, i int) error) error {
	for start := 0; start < n; start += im.chunkSize {
		end := min(start+im.chunkSize, n)
		err := im.store.InTx(ctx, func(tx repository.Repository) error {
			for i := start; i < end; i++ {
				if err := fn(tx, i); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("records %d-%d: %w", start, end-1, err)
		}
		im.logger.Debug("chunk committed", slog.Int("from", start), slog.Int("to", end-1))
	}
	return nil
}

// timestampLayouts are the ISO-8601 shapes found in exports, with and
// without a zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTimestamp returns the UTC time of s, or now when s is empty or not
// ISO-8601.
func (im *Importer) parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s != "" {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
		im.logger.Debug("unparseable timestamp; using now", slog.String("timestamp", s))
	}
	return im.now().UTC()
}

func parsePriority(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.ToUpper(strings.TrimSpace(*p))
	switch v {
	case model.PriorityLow, model.PriorityMedium, model.PriorityHigh:
		return &v
	}
	return nil
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func truncatePtr(s *string, n int) *string {
	if s == nil {
		return nil
	}
	v := truncate(strings.TrimSpace(*s), n)
	if v == "" {
		return nil
	}
	return &v
}
