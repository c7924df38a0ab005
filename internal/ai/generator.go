package ai

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser        Role = "user"
	RoleInterviewer Role = "interviewer"
)

// Message is one entry of the conversation handed to the model.
type Message struct {
	Role Role
	Text string
}

// Generator produces the interviewer's next reply given a system instruction
// and the conversation so far. The last message is expected to be the
// candidate's current answer.
type Generator interface {
	Generate(ctx context.Context, instruction string, history []Message) (string, error)
}
