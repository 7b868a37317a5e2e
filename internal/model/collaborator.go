package model

import "time"

type Permission string

const (
	PermissionView  Permission = "view"
	PermissionEdit  Permission = "edit"
	PermissionAdmin Permission = "admin"
)

func (p Permission) Valid() bool {
	switch p {
	case PermissionView, PermissionEdit, PermissionAdmin:
		return true
	}
	return false
}

var permissionRank = map[Permission]int{
	PermissionView:  1,
	PermissionEdit:  2,
	PermissionAdmin: 3,
}

// Allows reports whether p grants at least need. Unknown values grant nothing.
func (p Permission) Allows(need Permission) bool {
	have, ok := permissionRank[p]
	return ok && have >= permissionRank[need]
}

type Collaborator struct {
	ID         string      `json:"id"`
	TaskID     string      `json:"task_id"`
	UserID     string      `json:"user_id"`
	Permission Permission  `json:"permission"`
	CreatedAt  time.Time   `json:"created_at"`
	Profile    *ProfileRef `json:"profile,omitempty"`
}

type Profile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     *string   `json:"full_name"`
	AvatarURL    *string   `json:"avatar_url"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProfileRef is the public part of a profile joined onto a collaborator.
type ProfileRef struct {
	Email     string  `json:"email"`
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
}

type ProfilePatch struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}
