package chat

import "time"

// User is a chat participant as issued by the identity service.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
}

// Name returns the display name, falling back to the username.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Valid reports whether the record carries the fields every caller relies on.
func (u User) Valid() bool {
	return u.ID != "" && u.Username != ""
}

type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is a server-confirmed chat message. ID is the de-duplication key.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sender    User      `json:"sender"`
}
