package ai

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConversation is returned for message lists the API would reject.
var ErrInvalidConversation = errors.New("invalid conversation")

// Conversation roles accepted by the Messages API.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	maxMessages     = 200
	maxMessageRunes = 20000
)

// NormalizeConversation trims messages, drops empty ones and checks that the
// conversation starts with the user, alternates roles and ends with the user.
// Consecutive messages from the same role are merged.
func NormalizeConversation(msgs []Message) ([]Message, error) {
	out, err := normalize(msgs)
	if err != nil {
		return nil, err
	}
	if out[len(out)-1].Role != RoleUser {
		return nil, fmt.Errorf("%w: last message must come from the user", ErrInvalidConversation)
	}
	return out, nil
}

// NormalizeTranscript applies the same rules to a finished interview, which
// may end on either side.
func NormalizeTranscript(msgs []Message) ([]Message, error) {
	return normalize(msgs)
}

func normalize(msgs []Message) ([]Message, error) {
	out := make([]Message, 0, len(msgs))
	for i, m := range msgs {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return nil, fmt.Errorf("%w: message %d has role %q", ErrInvalidConversation, i, m.Role)
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if len([]rune(content)) > maxMessageRunes {
			return nil, fmt.Errorf("%w: message %d is too long", ErrInvalidConversation, i)
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + content
			continue
		}
		out = append(out, Message{Role: m.Role, Content: content})
	}

	switch {
	case len(out) == 0:
		return nil, fmt.Errorf("%w: no messages", ErrInvalidConversation)
	case len(out) > maxMessages:
		return nil, fmt.Errorf("%w: more than %d messages", ErrInvalidConversation, maxMessages)
	case out[0].Role != RoleUser:
		return nil, fmt.Errorf("%w: first message must come from the user", ErrInvalidConversation)
	}
	return out, nil
}
