// Package session keeps per-user rolling conversation history. The history
// feeds the intent and conversation prompts as context. Two backends exist:
// redis for shared deployments and an in-memory store for single-node and
// test use. History writes are best-effort; a failed append never blocks a
// reply.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Turn is one exchange in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History stores rolling per-user conversation turns.
type History interface {
	Append(ctx context.Context, userID string, turn Turn) error
	Recent(ctx context.Context, userID string) ([]Turn, error)
	Clear(ctx context.Context, userID string) error
}

// Render formats turns for embedding into a prompt, oldest first.
func Render(turns []Turn) string {
	if len(turns) == 0 {
		return "(no prior conversation)"
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
