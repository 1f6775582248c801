package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/support-desk/internal/apperror"
	"github.com/sakif/support-desk/internal/model"
	"github.com/sakif/support-desk/internal/repository"
)

const challengeColumns = `c.id, c.public_id, c.title, c.description, c.category, c.difficulty,
	c.points, c.assigned_support_user_id, c.created_at, c.updated_at`

func scanChallenge(row rowScanner) (*model.Challenge, error) {
	var (
		c                                 model.Challenge
		description, category, difficulty sql.NullString
		points, assigned                  sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.PublicID, &c.Title, &description, &category, &difficulty,
		&points, &assigned, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Description = stringPtr(description)
	c.Category = stringPtr(category)
	c.Difficulty = stringPtr(difficulty)
	c.Points = int64Ptr(points)
	c.AssignedSupportUserID = int64Ptr(assigned)
	return &c, nil
}

func (q *queries) GetChallengeByID(ctx context.Context, id int64) (*model.Challenge, error) {
	c, err := scanChallenge(q.q.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges c WHERE c.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("Challenge", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting challenge %d: %w", id, err)
	}
	return c, nil
}

func (q *queries) GetChallengeByPublicID(ctx context.Context, publicID string) (*model.Challenge, error) {
	c, err := scanChallenge(q.q.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges c WHERE c.public_id = ?`, publicID))
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("Challenge", publicID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting challenge %s: %w", publicID, err)
	}
	return c, nil
}

// challengeWhere builds the shared WHERE clause for listing and counting.
func challengeWhere(f repository.ChallengeFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Search != "" {
		p := likePattern(f.Search)
		conds = append(conds, `(c.title LIKE ? ESCAPE '\' OR c.description LIKE ? ESCAPE '\')`)
		args = append(args, p, p)
	}
	if f.Tag != "" {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM challenge_tags ct JOIN tags t ON t.id = ct.tag_id
			WHERE ct.challenge_id = c.id AND t.name = ?)`)
		args = append(args, f.Tag)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListChallenges returns a page of challenges ordered by points (highest
// first) and the total number of matches.
func (q *queries) ListChallenges(ctx context.Context, f repository.ChallengeFilter, opts repository.ListOptions) ([]model.Challenge, int, error) {
	where, args := challengeWhere(f)

	var total int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM challenges c`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting challenges: %w", err)
	}

	limit, limitArgs := limitClause(opts)
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges c`+where+
			` ORDER BY c.points DESC, c.id ASC`+limit,
		append(args, limitArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing challenges: %w", err)
	}
	defer rows.Close()

	challenges := []model.Challenge{}
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning challenge: %w", err)
		}
		challenges = append(challenges, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating challenges: %w", err)
	}
	return challenges, total, nil
}

func (q *queries) DeleteChallenge(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM challenges WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting challenge %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("Challenge", strconv.FormatInt(id, 10))
	}
	return nil
}

func (q *queries) listTags(ctx context.Context, query string, args ...any) ([]model.Tag, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tags: %w", err)
	}
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (q *queries) ListTags(ctx context.Context) ([]model.Tag, error) {
	return q.listTags(ctx, `SELECT id, name FROM tags ORDER BY name`)
}

func (q *queries) ListChallengeTags(ctx context.Context, challengeID int64) ([]model.Tag, error) {
	return q.listTags(ctx,
		`SELECT t.id, t.name FROM tags t
		 JOIN challenge_tags ct ON ct.tag_id = t.id
		 WHERE ct.challenge_id = ?
		 ORDER BY t.name`, challengeID)
}

// listTexts reads (id, challenge_id, text) rows from hints or objectives.
func (q *queries) listTexts(ctx context.Context, table string, challengeID int64, add func(id, challengeID int64, text string)) error {
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, challenge_id, text FROM `+table+` WHERE challenge_id = ? ORDER BY id`, challengeID)
	if err != nil {
		return fmt.Errorf("sqlite: listing %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, cid int64
			text    string
		)
		if err := rows.Scan(&id, &cid, &text); err != nil {
			return fmt.Errorf("sqlite: scanning %s: %w", table, err)
		}
		add(id, cid, text)
	}
	return rows.Err()
}

func (q *queries) ListHints(ctx context.Context, challengeID int64) ([]model.ChallengeHint, error) {
	hints := []model.ChallengeHint{}
	err := q.listTexts(ctx, "challenge_hints", challengeID, func(id, cid int64, text string) {
		hints = append(hints, model.ChallengeHint{ID: id, ChallengeID: cid, Text: text})
	})
	return hints, err
}

func (q *queries) ListLearningObjectives(ctx context.Context, challengeID int64) ([]model.LearningObjective, error) {
	objectives := []model.LearningObjective{}
	err := q.listTexts(ctx, "learning_objectives", challengeID, func(id, cid int64, text string) {
		objectives = append(objectives, model.LearningObjective{ID: id, ChallengeID: cid, Text: text})
	})
	return objectives, err
}

func (q *queries) UpsertChallenge(ctx context.Context, in *repository.ChallengeImport) error {
	c := &in.Challenge
	now := time.Now().UTC()

	_, err := q.q.ExecContext(ctx,
		`INSERT INTO challenges (public_id, title, description, category, difficulty, points, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(public_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			difficulty = excluded.difficulty,
			points = excluded.points,
			updated_at = excluded.updated_at`,
		c.PublicID, c.Title, nullString(c.Description), nullString(c.Category),
		nullString(c.Difficulty), nullInt64(c.Points), now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting challenge %s: %w", c.PublicID, err)
	}

	stored, err := q.GetChallengeByPublicID(ctx, c.PublicID)
	if err != nil {
		return err
	}
	*c = *stored

	for _, table := range []string{"challenge_hints", "learning_objectives", "challenge_tags"} {
		if _, err := q.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE challenge_id = ?`, c.ID); err != nil {
			return fmt.Errorf("sqlite: clearing %s of %s: %w", table, c.PublicID, err)
		}
	}

	for _, text := range in.Hints {
		if _, err := q.q.ExecContext(ctx,
			`INSERT INTO challenge_hints (challenge_id, text) VALUES (?, ?)`, c.ID, text); err != nil {
			return fmt.Errorf("sqlite: adding hint to %s: %w", c.PublicID, err)
		}
	}
	for _, text := range in.LearningObjectives {
		if _, err := q.q.ExecContext(ctx,
			`INSERT INTO learning_objectives (challenge_id, text) VALUES (?, ?)`, c.ID, text); err != nil {
			return fmt.Errorf("sqlite: adding objective to %s: %w", c.PublicID, err)
		}
	}
	for _, name := range in.Tags {
		if _, err := q.q.ExecContext(ctx,
			`INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("sqlite: adding tag %s: %w", name, err)
		}
		if _, err := q.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO challenge_tags (challenge_id, tag_id)
			 SELECT ?, id FROM tags WHERE name = ?`, c.ID, name); err != nil {
			return fmt.Errorf("sqlite: linking tag %s: %w", name, err)
		}
	}
	return nil
}
