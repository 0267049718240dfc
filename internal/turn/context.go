package turn

import (
	"strings"
	"sync"
)

// contextLines caps the conversation context passed to the responder at the
// two most recent exchanges (two lines per exchange).
const contextLines = 4

// conversation accumulates "User: ...\nVesper: ..." lines and keeps only the
// most recent ones. Safe for concurrent use.
type conversation struct {
	mu    sync.Mutex
	lines []string
}

// Append records one exchange and drops lines beyond the cap.
func (c *conversation) Append(command, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines = append(c.lines, "User: "+command, "Vesper: "+reply)
	if n := len(c.lines); n > contextLines {
		c.lines = c.lines[n-contextLines:]
	}
}

// String returns the retained lines joined by newlines, empty before the
// first exchange.
func (c *conversation) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.lines, "\n")
}
