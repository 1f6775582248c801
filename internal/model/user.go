// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// RoleSupportAdmin is the role that lets a caller assign conversations and
// change their status.
const RoleSupportAdmin = "support_admin"

// PlaceholderEmailDomain marks emails synthesised for users whose identity
// token carried no email claim. A placeholder may later be replaced by a real
// address.
const PlaceholderEmailDomain = "@example.com"

// User is a local account linked to an external identity provider subject.
//
// Subject is the provider's "sub" claim (for example "auth0|abc123"). It is
// unique when set, but users created by older imports may not have one yet.
//
// Roles are assigned out of band; nothing in the API lets a user grant
// themselves a role.
type User struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"auth0Id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Name      *string   `json:"name"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasPlaceholderEmail reports whether the stored email is missing or synthesised.
func (u *User) HasPlaceholderEmail() bool {
	return u.Email == "" || strings.HasSuffix(u.Email, PlaceholderEmailDomain)
}

// PlaceholderEmail builds the synthetic address used when a subject has no
// email claim. "|" is not valid in the local part, so it becomes "_".
func PlaceholderEmail(subject string) string {
	return strings.ReplaceAll(subject, "|", "_") + PlaceholderEmailDomain
}
