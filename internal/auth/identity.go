package auth

import "slices"

// Identity is what a verified token says about its bearer.
// Email and Name may be empty; the provider only sends what the user shared.
type Identity struct {
	Subject  string
	Email    string
	Name     string
	Nickname string
	Roles    []string
}

func (i *Identity) HasRole(role string) bool {
	return i != nil && slices.Contains(i.Roles, role)
}

// DisplayName picks the friendliest non-empty label: name, then nickname,
// then email. It returns "" when the token carried none of them.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	for _, s := range []string{i.Name, i.Nickname, i.Email} {
		if s != "" {
			return s
		}
	}
	return ""
}
