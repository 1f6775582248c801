package model

import "time"

// Challenge is a coding exercise that support conversations can refer to.
// PublicID is the stable identifier used by the frontend and seed files
// (for example "py-101"); ID is the internal row id.
type Challenge struct {
	ID                    int64     `json:"id"`
	PublicID              string    `json:"publicId"`
	Title                 string    `json:"title"`
	Description           *string   `json:"description"`
	Category              *string   `json:"category"`
	Difficulty            *string   `json:"difficulty"`
	Points                *int64    `json:"points"`
	AssignedSupportUserID *int64    `json:"assignedSupportUserId"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Tag labels challenges. Names are unique.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ChallengeHint is one hint text belonging to a challenge.
type ChallengeHint struct {
	ID          int64  `json:"id"`
	ChallengeID int64  `json:"challengeId"`
	Text        string `json:"text"`
}

// LearningObjective is one objective text belonging to a challenge.
type LearningObjective struct {
	ID          int64  `json:"id"`
	ChallengeID int64  `json:"challengeId"`
	Text        string `json:"text"`
}
