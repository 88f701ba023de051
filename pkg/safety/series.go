package safety

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultVerifiedSeries are regulated platforms and long-running series with
// objective resolution. Entries match as case-insensitive prefixes.
var DefaultVerifiedSeries = []string{
	"KX",
	"POLY",
	"US-POLITICS",
	"US-ELECTIONS",
	"NFL",
	"NBA",
	"MLB",
	"NHL",
	"SOCCER",
	"CRYPTO",
	"FED",
	"ECONOMICS",
}

// SeriesSet is an immutable set of verified series prefixes
type SeriesSet struct {
	prefixes []string
}

// NewSeriesSet normalizes, dedupes and sorts the given prefixes
func NewSeriesSet(series ...[]string) SeriesSet {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range series {
		for _, s := range list {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return SeriesSet{prefixes: out}
}

// Contains reports whether series starts with any verified prefix
func (s SeriesSet) Contains(series string) bool {
	series = strings.ToUpper(strings.TrimSpace(series))
	if series == "" {
		return false
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(series, p) {
			return true
		}
	}
	return false
}

// Len returns the number of prefixes in the set
func (s SeriesSet) Len() int {
	return len(s.prefixes)
}

// Loader fetches the current list of verified series from upstream
type Loader func(ctx context.Context) ([]string, error)

// SeriesCache is a process-wide read-through cache of the verified-series set.
// Loaded entries are merged with the static fallback list.
type SeriesCache struct {
	load     Loader
	ttl      time.Duration
	fallback []string
	now      func() time.Time

	group    singleflight.Group
	mu       sync.RWMutex
	set      SeriesSet
	loadedAt time.Time
}

// NewSeriesCache creates a cache. A nil loader serves the fallback list only.
func NewSeriesCache(load Loader, ttl time.Duration, fallback []string) *SeriesCache {
	return &SeriesCache{
		load:     load,
		ttl:      ttl,
		fallback: fallback,
		now:      time.Now,
		set:      NewSeriesSet(fallback),
	}
}

// Get returns the cached set, loading it first when it is missing or older
// than the TTL. On load failure the previous set is returned with the error.
func (c *SeriesCache) Get(ctx context.Context) (SeriesSet, error) {
	c.mu.RLock()
	set, loadedAt := c.set, c.loadedAt
	c.mu.RUnlock()

	if c.load == nil || (!loadedAt.IsZero() && c.now().Sub(loadedAt) < c.ttl) {
		return set, nil
	}
	return c.Refresh(ctx)
}

// Refresh reloads the set regardless of its age. Concurrent callers share one load.
func (c *SeriesCache) Refresh(ctx context.Context) (SeriesSet, error) {
	if c.load == nil {
		return c.current(), nil
	}
	v, err, _ := c.group.Do("series", func() (interface{}, error) {
		loaded, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		set := NewSeriesSet(c.fallback, loaded)
		c.mu.Lock()
		c.set = set
		c.loadedAt = c.now()
		c.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return c.current(), fmt.Errorf("refresh verified series: %w", err)
	}
	return v.(SeriesSet), nil
}

func (c *SeriesCache) current() SeriesSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set
}
