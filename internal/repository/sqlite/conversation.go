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

const conversationColumns = `sc.id, sc.identifier, sc.topic, sc.category, sc.status, sc.priority,
	sc.challenge_id, sc.created_by_user_id, sc.assigned_to_user_id, sc.created_at, sc.updated_at`

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		c                              model.Conversation
		category, priority             sql.NullString
		challengeID, creator, assignee sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.Identifier, &c.Topic, &category, &c.Status, &priority,
		&challengeID, &creator, &assignee, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Category = stringPtr(category)
	c.Priority = stringPtr(priority)
	c.ChallengeID = int64Ptr(challengeID)
	c.CreatedByUserID = int64Ptr(creator)
	c.AssignedToUserID = int64Ptr(assignee)
	return &c, nil
}

// CreateConversation inserts conv. A duplicate identifier is reported as a
// conflict so the caller can pick another one.
func (q *queries) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	now := time.Now().UTC()
	if conv.Status == "" {
		conv.Status = model.StatusOpen
	}

	res, err := q.q.ExecContext(ctx,
		`INSERT INTO support_conversations
			(identifier, topic, category, status, priority, challenge_id,
			 created_by_user_id, assigned_to_user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.Identifier, conv.Topic, nullString(conv.Category), conv.Status, nullString(conv.Priority),
		nullInt64(conv.ChallengeID), nullInt64(conv.CreatedByUserID), nullInt64(conv.AssignedToUserID),
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("conversation", conv.Identifier)
		}
		return fmt.Errorf("sqlite: creating conversation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading conversation id: %w", err)
	}
	conv.ID = id
	conv.CreatedAt = now
	conv.UpdatedAt = now
	return nil
}

func (q *queries) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	c, err := scanConversation(q.q.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM support_conversations sc WHERE sc.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("Conversation", "")
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting conversation %d: %w", id, err)
	}
	return c, nil
}

func (q *queries) GetConversationByIdentifier(ctx context.Context, identifier string) (*model.Conversation, error) {
	c, err := scanConversation(q.q.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM support_conversations sc WHERE sc.identifier = ?`, identifier))
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("Conversation", identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting conversation %s: %w", identifier, err)
	}
	return c, nil
}

func conversationWhere(f repository.ConversationFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, `sc.status = ?`)
		args = append(args, f.Status)
	}
	if f.Category != "" {
		conds = append(conds, `sc.category = ?`)
		args = append(args, f.Category)
	}
	if f.Search != "" {
		conds = append(conds, `sc.topic LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Search))
	}
	if f.ChallengePublicID != "" {
		conds = append(conds, `sc.challenge_id = (SELECT id FROM challenges WHERE public_id = ?)`)
		args = append(args, f.ChallengePublicID)
	}
	if f.AssignedToUserID != nil {
		conds = append(conds, `sc.assigned_to_user_id = ?`)
		args = append(args, *f.AssignedToUserID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListConversations returns a page of matching conversations, newest first,
// and the total number of matches.
func (q *queries) ListConversations(ctx context.Context, f repository.ConversationFilter, opts repository.ListOptions) ([]model.Conversation, int, error) {
	where, args := conversationWhere(f)

	var total int
	if err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM support_conversations sc`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting conversations: %w", err)
	}

	limit, limitArgs := limitClause(opts)
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM support_conversations sc`+where+
			` ORDER BY sc.created_at DESC, sc.id DESC`+limit,
		append(args, limitArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing conversations: %w", err)
	}
	defer rows.Close()

	convs := []model.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning conversation: %w", err)
		}
		convs = append(convs, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating conversations: %w", err)
	}
	return convs, total, nil
}

// AssignConversation sets the assignee and moves the conversation to
// ASSIGNED whatever its previous status.
func (q *queries) AssignConversation(ctx context.Context, id, userID int64) error {
	return q.updateConversation(ctx, id,
		`UPDATE support_conversations SET assigned_to_user_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		userID, model.StatusAssigned, time.Now().UTC(), id)
}

func (q *queries) UpdateConversationStatus(ctx context.Context, id int64, status model.Status) error {
	return q.updateConversation(ctx, id,
		`UPDATE support_conversations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
}

func (q *queries) updateConversation(ctx context.Context, id int64, query string, args ...any) error {
	res, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating conversation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("Conversation", "")
	}
	return nil
}

func (q *queries) ListConversationCategories(ctx context.Context) ([]string, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT DISTINCT category FROM support_conversations
		 WHERE category IS NOT NULL AND category <> ''
		 ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("sqlite: scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListAssignedUsers returns every user currently assigned to at least one
// conversation, ordered by username.
func (q *queries) ListAssignedUsers(ctx context.Context) ([]model.User, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id IN (SELECT assigned_to_user_id FROM support_conversations WHERE assigned_to_user_id IS NOT NULL)
		 ORDER BY username, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing assigned users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (q *queries) DeleteConversation(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM support_conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting conversation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("Conversation", strconv.FormatInt(id, 10))
	}
	return nil
}

// CreatePost appends a post. A zero CreatedAt means now.
func (q *queries) CreatePost(ctx context.Context, p *model.Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	res, err := q.q.ExecContext(ctx,
		`INSERT INTO conversation_posts (conversation_id, author_user_id, author_display_name, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ConversationID, nullInt64(p.AuthorUserID), nullString(p.AuthorDisplayName), p.Content, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating post: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading post id: %w", err)
	}
	p.ID = id
	return nil
}

// ListPosts returns a conversation's posts in creation order.
func (q *queries) ListPosts(ctx context.Context, conversationID int64) ([]model.Post, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, conversation_id, author_user_id, author_display_name, content, created_at
		 FROM conversation_posts
		 WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		var (
			p       model.Post
			author  sql.NullInt64
			display sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.ConversationID, &author, &display, &p.Content, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning post: %w", err)
		}
		p.AuthorUserID = int64Ptr(author)
		p.AuthorDisplayName = stringPtr(display)
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (q *queries) UpsertConversation(ctx context.Context, conv *model.Conversation, posts []model.Post) error {
	if conv.Status == "" {
		conv.Status = model.StatusOpen
	}
	now := time.Now().UTC()

	_, err := q.q.ExecContext(ctx,
		`INSERT INTO support_conversations (identifier, topic, category, status, priority, challenge_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(identifier) DO UPDATE SET
			topic = excluded.topic,
			category = excluded.category,
			status = excluded.status,
			priority = excluded.priority,
			challenge_id = excluded.challenge_id,
			updated_at = excluded.updated_at`,
		conv.Identifier, conv.Topic, nullString(conv.Category), conv.Status, nullString(conv.Priority),
		nullInt64(conv.ChallengeID), now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting conversation %s: %w", conv.Identifier, err)
	}

	stored, err := q.GetConversationByIdentifier(ctx, conv.Identifier)
	if err != nil {
		return err
	}
	*conv = *stored

	if _, err := q.q.ExecContext(ctx,
		`DELETE FROM conversation_posts WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("sqlite: clearing posts of %s: %w", conv.Identifier, err)
	}
	for i := range posts {
		posts[i].ConversationID = conv.ID
		if err := q.CreatePost(ctx, &posts[i]); err != nil {
			return err
		}
	}
	return nil
}
