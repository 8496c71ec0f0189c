package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/lox/climadash/internal/metrics"
)

// CachedExecutor memoizes query results keyed by query text and bound
// parameters. History is append-only within a session, so entries only
// expire by age.
type CachedExecutor struct {
	next    Executor
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]cacheEntry
	hits    int
	misses  int
}

type cacheEntry struct {
	table    *Table
	storedAt time.Time
}

// NewCachedExecutor wraps next. A ttl of zero keeps entries until Clear.
func NewCachedExecutor(next Executor, ttl time.Duration) *CachedExecutor {
	return &CachedExecutor{
		next:    next,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachedExecutor) Execute(ctx context.Context, query string, args ...any) (*Table, error) {
	key := cacheKey(query, args)

	c.mu.RLock()
	entry, found := c.entries[key]
	c.mu.RUnlock()

	if found && !c.expired(entry, time.Now()) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		metrics.QueryCacheLookups.WithLabelValues("hit").Inc()
		return entry.table, nil
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	metrics.QueryCacheLookups.WithLabelValues("miss").Inc()

	table, err := c.next.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{table: table, storedAt: time.Now()}
	c.mu.Unlock()
	return table, nil
}

func (c *CachedExecutor) expired(e cacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.storedAt) >= c.ttl
}

// Purge drops expired entries and returns how many were removed.
func (c *CachedExecutor) Purge() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Clear drops every entry, e.g. after new rows were imported.
func (c *CachedExecutor) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *CachedExecutor) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cache hit and miss counts.
func (c *CachedExecutor) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func cacheKey(query string, args []any) string {
	var b strings.Builder
	b.WriteString(strings.Join(strings.Fields(query), " "))
	for _, a := range args {
		b.WriteByte(0)
		writeKeyArg(&b, a)
	}
	return b.String()
}

// writeKeyArg encodes one bound parameter so that distinct values never
// share a key. String elements are quoted.
func writeKeyArg(b *strings.Builder, a any) {
	switch v := a.(type) {
	case string:
		b.WriteString(strconv.Quote(v))
	case []string:
		writeStrings(b, v)
	case pq.StringArray:
		writeStrings(b, v)
	case *pq.StringArray:
		if v == nil {
			b.WriteString("nil")
			return
		}
		writeStrings(b, *v)
	default:
		fmt.Fprintf(b, "%T:%v", a, a)
	}
}

func writeStrings(b *strings.Builder, vs []string) {
	b.WriteByte('[')
	for i, s := range vs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(s))
	}
	b.WriteByte(']')
}

var _ Executor = (*CachedExecutor)(nil)
