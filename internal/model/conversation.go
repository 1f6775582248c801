package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a support conversation.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusAssigned Status = "ASSIGNED"
	StatusResolved Status = "RESOLVED"
	StatusClosed   Status = "CLOSED"
)

// ParseStatus normalises s and reports whether it names a known status.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusOpen, StatusAssigned, StatusResolved, StatusClosed:
		return st, true
	}
	return "", false
}

// Priority values. Priority is optional on a conversation.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
)

// DefaultCategory is used when a conversation is opened without a category.
const DefaultCategory = "PennyLane Help"

// Conversation is a support ticket thread, optionally linked to a challenge.
//
// Identifier is the human-facing "CONV_XXXXXXXX" code: 32 random bits,
// unique among stored conversations. Creation draws again on a collision.
type Conversation struct {
	ID               int64     `json:"id"`
	Identifier       string    `json:"identifier"`
	Topic            string    `json:"topic"`
	Category         *string   `json:"category"`
	Status           Status    `json:"status"`
	Priority         *string   `json:"priority"`
	ChallengeID      *int64    `json:"challengeId"`
	CreatedByUserID  *int64    `json:"createdByUserId"`
	AssignedToUserID *int64    `json:"assignedToUserId"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Post is a single message in a conversation. Posts are append-only.
type Post struct {
	ID                int64     `json:"id"`
	ConversationID    int64     `json:"conversationId"`
	AuthorUserID      *int64    `json:"authorUserId"`
	AuthorDisplayName *string   `json:"authorDisplayName"`
	Content           string    `json:"content"`
	CreatedAt         time.Time `json:"createdAt"`
}
