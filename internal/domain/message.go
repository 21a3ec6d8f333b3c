package domain

import (
	"strings"
	"time"
)

const threadKeyPrefix = "thread:"

// Sender identifies which side of a thread wrote a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

// SenderFor maps an actor's role to its side of a thread.
func SenderFor(a Actor) Sender {
	if a.IsAdmin() {
		return SenderAdmin
	}
	return SenderUser
}

// Message is one append-only entry in a user/admin thread.
type Message struct {
	ID        string    `json:"id"`
	ThreadKey string    `json:"thread_key"`
	Seq       int64     `json:"seq"`
	Sender    Sender    `json:"sender"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ThreadKeyFor returns the thread shared by userID and the admin channel.
func ThreadKeyFor(userID string) string {
	return threadKeyPrefix + userID
}

// ThreadOwner returns the user side of a thread key.
func ThreadOwner(key string) (string, bool) {
	owner, ok := strings.CutPrefix(key, threadKeyPrefix)
	if !ok || owner == "" {
		return "", false
	}
	return owner, true
}
