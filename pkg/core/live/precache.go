package live

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sundial-care/sundial/pkg/core"
	"github.com/sundial-care/sundial/pkg/core/types"
)

// queryStopwords are dropped during query normalization so fuzzy
// matching compares content words only.
var queryStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "your": true,
	"i": true, "me": true, "we": true, "was": true, "is": true,
	"are": true, "to": true, "of": true, "in": true, "on": true,
	"and": true, "it": true, "that": true, "this": true, "about": true,
}

// NormalizeQuery lowercases a query, drops stopwords, and returns the
// remaining words sorted and joined, so word order never affects
// matching.
func NormalizeQuery(query string) string {
	fields := strings.Fields(strings.ToLower(query))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"")
		if f == "" || queryStopwords[f] {
			continue
		}
		words = append(words, f)
	}
	sort.Strings(words)
	return strings.Join(words, " ")
}

// JaccardSimilarity returns the word-set overlap of two normalized
// queries: |intersection| / |union|.
func JaccardSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

// possessiveMarkers introduce things the caller owns or cares about;
// the phrase after the marker makes a good memory query.
var possessiveMarkers = []string{"my ", "our "}

// activityVerbs introduce things the caller did or plans to do.
var activityVerbs = []string{
	"went to ", "visited ", "talked to ", "played ", "watched ",
	"planning to ", "going to ",
}

// ExtractUtteranceQueries derives up to max candidate memory-lookup
// queries from one utterance using topic, possessive, and activity
// patterns.
func ExtractUtteranceQueries(utterance string, max int) []string {
	lower := strings.ToLower(utterance)
	var queries []string

	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		for _, existing := range queries {
			if existing == q {
				return
			}
		}
		queries = append(queries, q)
	}

	for _, marker := range possessiveMarkers {
		idx := 0
		for {
			i := strings.Index(lower[idx:], marker)
			if i < 0 {
				break
			}
			start := idx + i + len(marker)
			add(firstWords(lower[start:], 3))
			idx = start
		}
	}

	for _, verb := range activityVerbs {
		if i := strings.Index(lower, verb); i >= 0 {
			add(firstWords(lower[i+len(verb):], 3))
		}
	}

	for _, topic := range ExtractTopics(utterance) {
		add(topic)
	}

	if max > 0 && len(queries) > max {
		queries = queries[:max]
	}
	return queries
}

// ExtractDirectionQueries derives lookup queries from a completed
// Direction: the anticipated next topic, the pending reminder subject,
// and the news topic.
func ExtractDirectionQueries(d *types.Direction) []string {
	if d == nil {
		return nil
	}
	var queries []string
	if d.AnticipatedTopic != "" {
		queries = append(queries, d.AnticipatedTopic)
	}
	if d.ReminderPlan.ShouldDeliver && d.ReminderPlan.Which != "" {
		queries = append(queries, d.ReminderPlan.Which)
	}
	if d.NewsTopic != "" {
		queries = append(queries, d.NewsTopic)
	}
	return queries
}

// firstWords returns up to n leading words of text, stopping at
// sentence punctuation.
func firstWords(text string, n int) string {
	if i := strings.IndexAny(text, ".!?,"); i >= 0 {
		text = text[:i]
	}
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// cacheEntry is one cached lookup result.
type cacheEntry struct {
	normalized string
	results    []types.MemoryRecord
	timestamp  time.Time
	source     string // "prefetch" or "direct"
}

// ContextCache anticipates memory lookups so the explicit recall tool
// returns instantly when its query was prefetched. Lookups are fuzzy:
// a query whose normalized word set overlaps a fresh entry at or above
// the similarity threshold is a hit. Entries expire after the TTL and
// are evicted lazily on the next read; capacity evicts oldest first.
type ContextCache struct {
	PassthroughStage

	config CacheConfig
	store  core.MemoryStore

	mu      sync.Mutex
	entries []cacheEntry

	sem chan struct{}

	ctx      context.Context
	callerID string
	onDebug  func(category, message string)
}

// NewContextCache creates the cache and its prefetch runner.
func NewContextCache(config CacheConfig, store core.MemoryStore) *ContextCache {
	maxInFlight := config.MaxConcurrentLookups
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &ContextCache{
		config: config,
		store:  store,
		sem:    make(chan struct{}, maxInFlight),
	}
}

// Wire connects the cache to its session.
func (c *ContextCache) Wire(ctx context.Context, callerID string, onDebug func(category, message string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
	c.callerID = callerID
	c.onDebug = onDebug
}

// Name implements Stage.
func (c *ContextCache) Name() string { return "precache" }

// HandleUpstream extracts candidate queries from each utterance and
// prefetches misses in the background. The utterance passes through
// unchanged.
func (c *ContextCache) HandleUpstream(ev Event) []Event {
	if utt, ok := ev.(*UtteranceEvent); ok {
		c.PrefetchQueries(ExtractUtteranceQueries(utt.Text, c.config.MaxQueriesPerUtterance))
	}
	return []Event{ev}
}

// PrefetchDirection prefetches the queries a completed Direction
// anticipates. Called by the direction engine off the forward path.
func (c *ContextCache) PrefetchDirection(d *types.Direction) {
	c.PrefetchQueries(ExtractDirectionQueries(d))
}

// PrefetchQueries starts bounded-concurrency background lookups for
// queries not already cached. Never blocks the caller.
func (c *ContextCache) PrefetchQueries(queries []string) {
	if c.store == nil {
		return
	}
	for _, query := range queries {
		if _, ok := c.Lookup(query); ok {
			continue
		}
		c.prefetchOne(query)
	}
}

func (c *ContextCache) prefetchOne(query string) {
	c.mu.Lock()
	parent := c.ctx
	callerID := c.callerID
	c.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	select {
	case c.sem <- struct{}{}:
	default:
		// At the in-flight bound; skip rather than queue.
		c.debug("CACHE", "Prefetch skipped (concurrency bound): "+query)
		return
	}

	Spawn(parent, "cache-prefetch", func(ctx context.Context) {
		defer func() { <-c.sem }()

		results, err := c.store.SearchMemories(ctx, callerID, query, c.config.LookupLimit)
		if err != nil {
			c.debug("CACHE", "Prefetch failed for "+query+": "+err.Error())
			return
		}
		c.Insert(query, results, "prefetch")
		c.debug("CACHE", "Prefetched "+query)
	}, func(name string, v any) {
		<-c.sem
	})
}

// Lookup performs a fuzzy cache read. Expired entries encountered on
// the way are evicted.
func (c *ContextCache) Lookup(query string) ([]types.MemoryRecord, bool) {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()

	for _, entry := range c.entries {
		if JaccardSimilarity(normalized, entry.normalized) >= c.config.SimilarityThreshold {
			return entry.results, true
		}
	}
	return nil, false
}

// Insert stores a lookup result, evicting the oldest entry when over
// capacity.
func (c *ContextCache) Insert(query string, results []types.MemoryRecord, source string) {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Replace an existing entry for the same normalized query.
	for i := range c.entries {
		if c.entries[i].normalized == normalized {
			c.entries[i].results = results
			c.entries[i].timestamp = time.Now()
			c.entries[i].source = source
			return
		}
	}

	c.entries = append(c.entries, cacheEntry{
		normalized: normalized,
		results:    results,
		timestamp:  time.Now(),
		source:     source,
	})

	if c.config.Capacity > 0 && len(c.entries) > c.config.Capacity {
		oldest := 0
		for i := range c.entries {
			if c.entries[i].timestamp.Before(c.entries[oldest].timestamp) {
				oldest = i
			}
		}
		c.entries = append(c.entries[:oldest], c.entries[oldest+1:]...)
	}
}

// evictExpiredLocked drops entries older than the TTL. Caller holds mu.
func (c *ContextCache) evictExpiredLocked() {
	if c.config.TTL <= 0 {
		return
	}
	fresh := c.entries[:0]
	for _, entry := range c.entries {
		if time.Since(entry.timestamp) < c.config.TTL {
			fresh = append(fresh, entry)
		}
	}
	c.entries = fresh
}

// LookupOrFetch serves the explicit recall tool: a cache hit returns
// instantly, a miss falls through to the store and caches the result.
func (c *ContextCache) LookupOrFetch(ctx context.Context, query string) ([]types.MemoryRecord, error) {
	if results, ok := c.Lookup(query); ok {
		c.debug("CACHE", "Recall hit: "+query)
		return results, nil
	}
	if c.store == nil {
		return nil, nil
	}

	c.mu.Lock()
	callerID := c.callerID
	c.mu.Unlock()

	results, err := c.store.SearchMemories(ctx, callerID, query, c.config.LookupLimit)
	if err != nil {
		return nil, core.NewStoreError("search_memories", err)
	}
	c.Insert(query, results, "direct")
	return results, nil
}

// Len returns the number of live cache entries.
func (c *ContextCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked()
	return len(c.entries)
}

func (c *ContextCache) debug(category, message string) {
	c.mu.Lock()
	onDebug := c.onDebug
	c.mu.Unlock()
	if onDebug != nil {
		onDebug(category, message)
	}
}
