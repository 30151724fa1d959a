package subscriber

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mercure-hub/hub/internal/update"
)

// StreamWriter is the minimal contract a Subscriber needs from its HTTP
// response: writable bytes that can be flushed to the client
// immediately, per chunked-transfer SSE semantics.
type StreamWriter interface {
	Write(p []byte) (int, error)
	Flush()
}

// formatFrame serializes u as an SSE frame per spec §6: an `id:` line,
// an optional `event:` line, an optional `retry:` line, then one or
// more `data:` lines (embedded newlines in u.Data become additional
// `data:` lines), terminated by the blank line that closes the event.
func formatFrame(u *update.Update) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "id: %s\n", u.ID)
	if u.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", u.Type)
	}
	if u.Retry != nil {
		fmt.Fprintf(&b, "retry: %s\n", strconv.Itoa(*u.Retry))
	}
	for _, line := range strings.Split(u.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	return []byte(b.String())
}

// formatHeartbeat serializes a comment-only SSE line used to keep
// idle connections (and intermediary proxies) alive.
func formatHeartbeat(payload string) []byte {
	return []byte(": " + payload + "\n\n")
}
