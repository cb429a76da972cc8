package domain

import (
	"time"
)

// DefaultLearnerName is used in prompts when the learner has not set a name.
const DefaultLearnerName = "Student"

// Learner is an anonymous learner profile tied to a device cookie.
type Learner struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"name"`
	Topic       string    `json:"topic"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Name returns the display name, falling back to DefaultLearnerName.
func (l *Learner) Name() string {
	if l == nil || IsBlank(l.DisplayName) {
		return DefaultLearnerName
	}
	return l.DisplayName
}

// PreferredTopic returns the learner's saved topic or DefaultTopic.
func (l *Learner) PreferredTopic() Topic {
	if l == nil {
		return DefaultTopic
	}
	t, _ := ParseTopic(l.Topic)
	return t
}
