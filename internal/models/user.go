package models

import (
	"strings"
	"time"
)

type User struct {
	ID           uint   `gorm:"primarykey"`
	Username     string `gorm:"size:50;uniqueIndex;not null"`
	PasswordHash string `gorm:"not null" json:"-"`
	Enabled      bool   `gorm:"not null;default:true"`
	Roles        string `gorm:"size:64;not null;default:'USER'"` // comma separated
	Version      int64  `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoleList returns the user's roles.
func (u *User) RoleList() []string {
	return SplitRoles(u.Roles)
}

// HasRole checks if the user holds role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.RoleList() {
		if r == role {
			return true
		}
	}
	return false
}

// SetRoles stores roles normalized and de-duplicated.
func (u *User) SetRoles(roles []string) {
	u.Roles = JoinRoles(roles)
}

func SplitRoles(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func JoinRoles(roles []string) string {
	seen := make(map[string]bool, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.ToUpper(strings.TrimSpace(r))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return strings.Join(out, ",")
}
