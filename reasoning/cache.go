// Package reasoning keeps condensed prior-turn reasoning per session so
// multi-turn diagnostics stay coherent. The cache is bounded on two axes
// (tracked sessions, entries per session), expires entries lazily by TTL,
// and renders the same entries differently per target provider.
package reasoning

import (
	"container/list"
	"sync"
	"time"

	"github.com/arkadyv/diagent"
)

// ToolMark is a compact {tool, success} tuple recorded with each entry.
type ToolMark struct {
	Name    string
	Success bool
}

// Entry is one turn's condensed reasoning. Entries never leave the cache
// except as rendered prompt context.
type Entry struct {
	SessionID      string
	Reasoning      string
	ContinuationID string
	ToolResults    []ToolMark
	Provider       diagent.Provider
	CreatedAt      time.Time
}

// Config bounds the cache.
type Config struct {
	// MaxSessions is the number of tracked sessions; the least recently
	// used session is evicted when exceeded.
	MaxSessions int

	// MaxEntriesPerSession bounds retained entries per session; oldest
	// entries drop first.
	MaxEntriesPerSession int

	// TTL expires entries, checked lazily on read. Zero disables expiry.
	TTL time.Duration

	// MaxReasoningChars truncates stored reasoning text. Summarization is
	// plain bounded truncation; the contract allows substituting an
	// LLM-based summarizer without change.
	MaxReasoningChars int
}

// DefaultConfig returns 100 sessions, 5 entries each, 30 minute TTL, 2000
// character reasoning bound.
func DefaultConfig() Config {
	return Config{
		MaxSessions:          100,
		MaxEntriesPerSession: 5,
		TTL:                  30 * time.Minute,
		MaxReasoningChars:    2000,
	}
}

type bucket struct {
	sessionID string
	entries   []*Entry
}

// Cache is the reasoning cache. Safe for concurrent use; it is one of only
// two shared mutable resources in the engine (the other is the session map).
type Cache struct {
	mu       sync.Mutex
	cfg      Config
	lru      *list.List               // front = most recently used
	sessions map[string]*list.Element // value: *bucket
	now      func() time.Time
}

// NewCache creates a Cache with the given bounds.
func NewCache(cfg Config) *Cache {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultConfig().MaxSessions
	}
	if cfg.MaxEntriesPerSession <= 0 {
		cfg.MaxEntriesPerSession = DefaultConfig().MaxEntriesPerSession
	}
	return &Cache{
		cfg:      cfg,
		lru:      list.New(),
		sessions: make(map[string]*list.Element),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Returns the cache for chaining; used
// by TTL tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Store records one turn's condensed reasoning for a session, truncating
// long text and enforcing both bounds.
func (c *Cache) Store(
	sessionID string,
	reasoningText string,
	continuationID string,
	toolResults []ToolMark,
	provider diagent.Provider,
) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &Entry{
		SessionID:      sessionID,
		Reasoning:      truncate(reasoningText, c.cfg.MaxReasoningChars),
		ContinuationID: continuationID,
		ToolResults:    toolResults,
		Provider:       provider,
		CreatedAt:      c.now(),
	}

	elem, ok := c.sessions[sessionID]
	if !ok {
		elem = c.lru.PushFront(&bucket{sessionID: sessionID})
		c.sessions[sessionID] = elem
		c.evictOverflowLocked()
	} else {
		c.lru.MoveToFront(elem)
	}

	b := elem.Value.(*bucket)
	b.entries = append(b.entries, entry)
	if len(b.entries) > c.cfg.MaxEntriesPerSession {
		b.entries = b.entries[len(b.entries)-c.cfg.MaxEntriesPerSession:]
	}
}

// Delete drops all cached entries for the session. Unknown ids are a no-op.
func (c *Cache) Delete(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.sessions[sessionID]; ok {
		c.lru.Remove(elem)
		delete(c.sessions, sessionID)
	}
}

// Latest returns the most recent unexpired entry for the session, or nil.
func (c *Cache) Latest(sessionID string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.liveEntriesLocked(sessionID)
	if len(entries) == 0 {
		return nil
	}
	return entries[len(entries)-1]
}

// Entries returns all unexpired entries for the session, oldest first.
func (c *Cache) Entries(sessionID string) []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.liveEntriesLocked(sessionID)
	out := make([]*Entry, len(live))
	copy(out, live)
	return out
}

// ContextForPrompt renders the session's unexpired entries for injection
// into an outgoing prompt, formatted for the target provider. Returns ""
// when there is nothing to inject. maxChars bounds the rendered output;
// zero means no bound.
func (c *Cache) ContextForPrompt(
	sessionID string,
	provider diagent.Provider,
	maxChars int,
) string {
	c.mu.Lock()
	entries := c.liveEntriesLocked(sessionID)
	if elem, ok := c.sessions[sessionID]; ok {
		c.lru.MoveToFront(elem)
	}
	snapshot := make([]*Entry, len(entries))
	copy(snapshot, entries)
	c.mu.Unlock()

	if len(snapshot) == 0 {
		return ""
	}
	return truncate(render(snapshot, provider), maxChars)
}

// liveEntriesLocked prunes expired entries for the session and returns the
// survivors. TTL is checked lazily here; there is no background sweeper.
func (c *Cache) liveEntriesLocked(sessionID string) []*Entry {
	elem, ok := c.sessions[sessionID]
	if !ok {
		return nil
	}
	b := elem.Value.(*bucket)

	if c.cfg.TTL > 0 {
		cutoff := c.now().Add(-c.cfg.TTL)
		live := b.entries[:0]
		for _, e := range b.entries {
			if e.CreatedAt.After(cutoff) {
				live = append(live, e)
			}
		}
		b.entries = live
	}

	if len(b.entries) == 0 {
		c.lru.Remove(elem)
		delete(c.sessions, sessionID)
		return nil
	}
	return b.entries
}

// evictOverflowLocked drops least recently used sessions past MaxSessions.
func (c *Cache) evictOverflowLocked() {
	for c.lru.Len() > c.cfg.MaxSessions {
		oldest := c.lru.Back()
		if oldest == nil {
			return
		}
		b := oldest.Value.(*bucket)
		c.lru.Remove(oldest)
		delete(c.sessions, b.sessionID)
	}
}

// truncate bounds s to maxChars runes, marking the cut.
func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	return string(runes[:maxChars-3]) + "..."
}
