package services

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/pybridge-app/pybridge/shared"
)

// FetchFunc loads one resource from upstream. The context is the cache's
// own: it is canceled when a mutation claims the key mid-flight.
type FetchFunc func(ctx context.Context) (interface{}, error)

type cacheEntry struct {
	value     interface{}
	fetchedAt time.Time
	stale     bool
	refetch   FetchFunc
}

type subscription struct {
	prefix string
	fn     func(key string)
}

// QueryCacheService is the process-wide keyed store of upstream resources:
// stale-while-revalidate reads, per-key request deduplication, prefix
// invalidation and prefix cancellation. It holds no durable state and is
// rebuilt from upstream on restart.
type QueryCacheService struct {
	appContext.DefaultService

	mu         sync.Mutex
	entries    map[string]*cacheEntry
	inflight   map[string]map[int64]context.CancelFunc
	inflightID int64
	subs       map[int]subscription
	nextSub    int

	group singleflight.Group

	StaleWindow time.Duration
}

const QUERY_CACHE_SVC = "query_cache_svc"

const defaultStaleWindow = 5 * time.Minute

func (svc QueryCacheService) Id() string {
	return QUERY_CACHE_SVC
}

func (svc *QueryCacheService) Configure(ctx *appContext.Context) error {
	svc.init()

	svc.StaleWindow = defaultStaleWindow
	if s := os.Getenv("CACHE_STALE_SECONDS"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			svc.StaleWindow = time.Duration(secs) * time.Second
		}
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *QueryCacheService) Start() error {
	return nil
}

func (svc *QueryCacheService) init() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.entries == nil {
		svc.entries = make(map[string]*cacheEntry)
		svc.inflight = make(map[string]map[int64]context.CancelFunc)
		svc.subs = make(map[int]subscription)
	}
	if svc.StaleWindow == 0 {
		svc.StaleWindow = defaultStaleWindow
	}
}

// Get returns the cached value for key. Fresh entries come straight from
// memory. Stale entries are returned immediately while a background refetch
// runs. Absent entries fetch inline; concurrent callers for the same key
// share a single upstream request.
func (svc *QueryCacheService) Get(ctx context.Context, key string, fetch FetchFunc) (interface{}, error) {
	svc.init()

	svc.mu.Lock()
	entry, ok := svc.entries[key]
	if ok {
		entry.refetch = fetch
		fresh := !entry.stale && time.Since(entry.fetchedAt) < svc.StaleWindow
		value := entry.value
		svc.mu.Unlock()

		if fresh {
			recordCacheHit(key)
			return value, nil
		}

		recordCacheStaleServe(key)
		go func() {
			if _, err := svc.fetch(key, fetch); err != nil {
				log.WithError(err).WithField("key", key).Debug("Background refetch failed")
			}
		}()
		return value, nil
	}
	svc.mu.Unlock()

	recordCacheMiss(key)
	return svc.fetch(key, fetch)
}

// KeysWithPrefix lists every cached key under prefix.
func (svc *QueryCacheService) KeysWithPrefix(prefix string) []string {
	svc.init()

	svc.mu.Lock()
	defer svc.mu.Unlock()

	var keys []string
	for key := range svc.entries {
		if shared.KeyWithinPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Peek reads the current cached value without triggering any fetch.
func (svc *QueryCacheService) Peek(key string) (interface{}, bool) {
	svc.init()

	svc.mu.Lock()
	defer svc.mu.Unlock()

	entry, ok := svc.entries[key]
	if !ok {
		return nil, false
	}
	return entry.value, true
}

// Set writes a value synchronously, bypassing any fetch. Used for optimistic
// mutation writes. The entry starts fresh so a racing read does not refetch
// over it.
func (svc *QueryCacheService) Set(key string, value interface{}) {
	svc.init()

	svc.mu.Lock()
	entry, ok := svc.entries[key]
	if !ok {
		entry = &cacheEntry{}
		svc.entries[key] = entry
	}
	entry.value = value
	entry.fetchedAt = time.Now()
	entry.stale = false
	svc.mu.Unlock()

	svc.notify(key)
}

// Invalidate marks every entry under prefix as stale. Entries a subscriber is
// watching refetch immediately; the rest wait for their next read, so an
// invalidation with no subscribers costs no network call.
func (svc *QueryCacheService) Invalidate(prefix string) {
	svc.init()

	type refetchJob struct {
		key   string
		fetch FetchFunc
	}
	var jobs []refetchJob

	svc.mu.Lock()
	for key, entry := range svc.entries {
		if !shared.KeyWithinPrefix(key, prefix) {
			continue
		}
		entry.stale = true
		if entry.refetch != nil && svc.hasSubscriberLocked(key) {
			jobs = append(jobs, refetchJob{key: key, fetch: entry.refetch})
		}
	}
	svc.mu.Unlock()

	for _, job := range jobs {
		job := job
		go func() {
			if _, err := svc.fetch(job.key, job.fetch); err != nil {
				log.WithError(err).WithField("key", job.key).Debug("Invalidation refetch failed")
			}
		}()
	}
}

// Cancel aborts in-flight fetches for every key under prefix. Canceled
// fetches never write their result, so an optimistic value applied right
// after Cancel cannot be clobbered by a slow passive refetch.
func (svc *QueryCacheService) Cancel(prefix string) {
	svc.init()

	// Canceling under the lock closes the race with a fetch that has already
	// returned but not yet written: its write re-checks ctx under this lock.
	svc.mu.Lock()
	for key, flights := range svc.inflight {
		if !shared.KeyWithinPrefix(key, prefix) {
			continue
		}
		for _, cancel := range flights {
			cancel()
		}
		delete(svc.inflight, key)
		svc.group.Forget(key)
	}
	svc.mu.Unlock()
}

// Clear cancels everything in flight and drops every entry. Runs on logout so
// one user's cached state never leaks into the next session.
func (svc *QueryCacheService) Clear() {
	svc.init()

	svc.mu.Lock()
	for key, flights := range svc.inflight {
		for _, cancel := range flights {
			cancel()
		}
		delete(svc.inflight, key)
		svc.group.Forget(key)
	}
	svc.entries = make(map[string]*cacheEntry)
	svc.mu.Unlock()
}

// Subscribe registers a change callback for every key under prefix. The
// returned function unsubscribes.
func (svc *QueryCacheService) Subscribe(prefix string, fn func(key string)) func() {
	svc.init()

	svc.mu.Lock()
	id := svc.nextSub
	svc.nextSub++
	svc.subs[id] = subscription{prefix: prefix, fn: fn}
	svc.mu.Unlock()

	return func() {
		svc.mu.Lock()
		delete(svc.subs, id)
		svc.mu.Unlock()
	}
}

// ==================== SNAPSHOTS ====================

type snapshotEntry struct {
	value     interface{}
	fetchedAt time.Time
	stale     bool
	existed   bool
}

// CacheSnapshot captures the exact pre-mutation state of a key set so a
// failed mutation can restore it verbatim.
type CacheSnapshot struct {
	entries map[string]snapshotEntry
}

func (s *CacheSnapshot) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

func (svc *QueryCacheService) Snapshot(keys []string) *CacheSnapshot {
	svc.init()

	snap := &CacheSnapshot{entries: make(map[string]snapshotEntry, len(keys))}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	for _, key := range keys {
		if entry, ok := svc.entries[key]; ok {
			snap.entries[key] = snapshotEntry{
				value:     entry.value,
				fetchedAt: entry.fetchedAt,
				stale:     entry.stale,
				existed:   true,
			}
		} else {
			snap.entries[key] = snapshotEntry{existed: false}
		}
	}

	return snap
}

// Restore puts every snapshotted key back exactly as captured. Keys that did
// not exist at snapshot time are removed again.
func (svc *QueryCacheService) Restore(snap *CacheSnapshot) {
	svc.init()

	var changed []string

	svc.mu.Lock()
	for key, se := range snap.entries {
		if !se.existed {
			delete(svc.entries, key)
			changed = append(changed, key)
			continue
		}
		entry, ok := svc.entries[key]
		if !ok {
			entry = &cacheEntry{}
			svc.entries[key] = entry
		}
		entry.value = se.value
		entry.fetchedAt = se.fetchedAt
		entry.stale = se.stale
		changed = append(changed, key)
	}
	svc.mu.Unlock()

	for _, key := range changed {
		svc.notify(key)
	}
}

// ==================== INTERNALS ====================

func (svc *QueryCacheService) fetch(key string, fetch FetchFunc) (interface{}, error) {
	value, err, _ := svc.group.Do(key, func() (interface{}, error) {
		fctx, cancel := context.WithCancel(context.Background())

		svc.mu.Lock()
		svc.inflightID++
		id := svc.inflightID
		if svc.inflight[key] == nil {
			svc.inflight[key] = make(map[int64]context.CancelFunc)
		}
		svc.inflight[key][id] = cancel
		svc.mu.Unlock()

		defer func() {
			svc.mu.Lock()
			if flights, ok := svc.inflight[key]; ok {
				delete(flights, id)
				if len(flights) == 0 {
					delete(svc.inflight, key)
				}
			}
			svc.mu.Unlock()
			cancel()
		}()

		value, err := fetch(fctx)
		if err != nil {
			return nil, err
		}

		svc.mu.Lock()
		if fctx.Err() != nil {
			// Canceled by a mutation: the optimistic value wins, discard ours.
			svc.mu.Unlock()
			return nil, fctx.Err()
		}
		entry, ok := svc.entries[key]
		if !ok {
			entry = &cacheEntry{}
			svc.entries[key] = entry
		}
		entry.value = value
		entry.fetchedAt = time.Now()
		entry.stale = false
		entry.refetch = fetch
		svc.mu.Unlock()

		svc.notify(key)
		return value, nil
	})

	return value, err
}

func (svc *QueryCacheService) hasSubscriberLocked(key string) bool {
	for _, sub := range svc.subs {
		if shared.KeyWithinPrefix(key, sub.prefix) {
			return true
		}
	}
	return false
}

func (svc *QueryCacheService) notify(key string) {
	svc.mu.Lock()
	var fns []func(string)
	for _, sub := range svc.subs {
		if shared.KeyWithinPrefix(key, sub.prefix) {
			fns = append(fns, sub.fn)
		}
	}
	svc.mu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}
