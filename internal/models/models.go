package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	Email    string
	PassHash []byte
	IsActive bool
	Role     string
}

// Scopes derives the capability labels granted to a user from its role.
// An admin keeps the user scope so it passes user-level gates too.
func (u User) Scopes() []string {
	if u.Role == RoleAdmin {
		return []string{RoleAdmin, RoleUser}
	}
	return []string{RoleUser}
}

type Post struct {
	ID             int64
	Title          string
	Content        string
	OwnerEmail     string
	DateCreated    time.Time
	DateLastUpdate time.Time
}

// Comment is one node of a post's comment tree. Name holds the author's
// email, ParentID is nil for root comments.
type Comment struct {
	ID          int64
	PostID      int64
	Name        string
	Body        string
	ParentID    *int64
	DateCreated time.Time
}

type EmailMessage struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Vars     map[string]string `json:"vars,omitempty"`
}
