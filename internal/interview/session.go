package interview

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Speaker identifies who authored a transcript entry.
type Speaker string

const (
	SpeakerUser        Speaker = "user"
	SpeakerInterviewer Speaker = "interviewer"
)

// Turn is one immutable transcript entry. On user entries CodeOutput records
// the execution result, or the no-code sentinel when the turn carried no
// code; CodeSnippet is set only when code was actually submitted.
type Turn struct {
	Speaker     Speaker
	Text        string
	CodeSnippet string
	CodeOutput  string
}

// Session owns the transcript and turn counter for one candidate. The
// transcript is append-only; entries are never edited and never removed
// except by a full Reset.
type Session struct {
	mu         sync.Mutex
	id         string
	role       string
	transcript []Turn
	turns      int
}

// NewSession creates an empty session for the given candidate role.
func NewSession(role string) *Session {
	return &Session{
		id:   uuid.NewString(),
		role: role,
	}
}

// HistoryEntry is a transcript entry as supplied by an external caller, e.g.
// the chat endpoint's client-held history.
type HistoryEntry struct {
	Role    string
	Content string
}

// SeedHistory replaces the transcript with the provided external history.
// Entries with role "user" become user turns; "assistant", "interviewer" and
// "model" become interviewer turns. Anything else — notably "system" — is
// discarded: the instruction is re-derived fresh each turn and must never
// enter the conversation through caller-supplied history. The turn counter is
// derived as one turn per kept user/interviewer pair.
func (s *Session) SeedHistory(entries []HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript = s.transcript[:0]
	for _, e := range entries {
		var speaker Speaker
		switch {
		case strings.EqualFold(e.Role, string(SpeakerUser)):
			speaker = SpeakerUser
		case strings.EqualFold(e.Role, "assistant"),
			strings.EqualFold(e.Role, "model"),
			strings.EqualFold(e.Role, string(SpeakerInterviewer)):
			speaker = SpeakerInterviewer
		default:
			continue
		}
		s.transcript = append(s.transcript, Turn{Speaker: speaker, Text: e.Content})
	}
	s.turns = len(s.transcript) / 2
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Role() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// SetRole updates the candidate role for subsequent turns.
func (s *Session) SetRole(role string) {
	role = strings.TrimSpace(role)
	if role == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
}

// TurnCount reports the number of completed interviewer turns.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// Len reports the number of transcript entries.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcript)
}

// Snapshot returns a copy of the transcript in append order.
func (s *Session) Snapshot() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// commit appends the user entry and the interviewer reply as one atomic
// operation and advances the turn counter. It is only called after the model
// call succeeded, so a failed turn never mutates the transcript.
func (s *Session) commit(user, reply Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, user, reply)
	s.turns++
}

// Reset discards the transcript and turn counter.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
	s.turns = 0
}
