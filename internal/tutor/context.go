// Package tutor assembles tutoring conversations and runs chat turns.
package tutor

import (
	"github.com/ashureev/mathtutor/internal/domain"
)

// BuildContext returns the outbound message sequence for one chat turn: a
// freshly synthesized system message, the prior history with any system
// entries dropped, and the new user message.
func BuildContext(topic domain.Topic, learnerName string, history []domain.Message, userText string) []domain.Message {
	if domain.IsBlank(learnerName) {
		learnerName = domain.DefaultLearnerName
	}

	messages := make([]domain.Message, 0, len(history)+2)
	messages = append(messages, domain.Message{
		Role:    domain.RoleSystem,
		Content: topic.Persona() + "\n\nStudent name: " + learnerName,
	})
	for _, m := range history {
		if m.Role == domain.RoleSystem {
			continue
		}
		messages = append(messages, m)
	}
	return append(messages, domain.UserMessage(userText))
}

// quickQuestions are conversation starters offered before the first turn.
var quickQuestions = []string{
	"How do I compare fractions?",
	"What's an equivalent fraction?",
	"Can you explain with an example?",
	"I'm stuck on a problem",
	"What's a real-world use?",
}

// QuickQuestions returns the starter questions.
func QuickQuestions() []string {
	out := make([]string, len(quickQuestions))
	copy(out, quickQuestions)
	return out
}

// Greeting is the tutor's opening message for a new conversation.
func Greeting(topic domain.Topic, learnerName string) string {
	if domain.IsBlank(learnerName) {
		learnerName = domain.DefaultLearnerName
	}
	return "Hi " + learnerName + "! 👋 I'm your math helper. Ask me anything about " + topic.ID() +
		"! I can help you understand concepts, solve problems, or just clarify doubts."
}
