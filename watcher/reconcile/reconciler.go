// Package reconcile owns the authoritative trade collection. Stream events,
// history seeds and user actions all funnel through here; everything else in
// the watcher only reads snapshots.
package reconcile

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/solwatch/tradewatch/shared/cache"
	"github.com/solwatch/tradewatch/shared/models"
)

// StorageKey is the persistent cache key holding the serialized collection.
const StorageKey = "realtime_trades"

// DefaultMaxTrades bounds the collection when no explicit limit is given.
const DefaultMaxTrades = 50

// Source records where the currently held collection originated. Live merges
// mutate content but never provenance.
type Source string

const (
	SourceBackend      Source = "backend"
	SourceLocalStorage Source = "localStorage"
	SourceNone         Source = "none"
)

// Reconciler merges incoming trade records into a bounded, deduplicated,
// order-preserving collection and mirrors every change into the persistent
// local cache.
type Reconciler struct {
	mu        sync.RWMutex
	trades    []models.TradeRecord
	maxTrades int
	source    Source

	store  *cache.Store
	logger *logrus.Entry

	subs   map[int]chan []models.TradeRecord
	nextID int
}

// New creates an empty reconciler bounded to maxTrades records. store may be
// nil, in which case changes are kept in memory only.
func New(maxTrades int, store *cache.Store, logger *logrus.Logger) *Reconciler {
	if maxTrades <= 0 {
		maxTrades = DefaultMaxTrades
	}
	return &Reconciler{
		maxTrades: maxTrades,
		source:    SourceNone,
		store:     store,
		logger:    logger.WithField("component", "reconcile"),
		subs:      make(map[int]chan []models.TradeRecord),
	}
}

// Merge applies one incoming record to the collection. A record whose
// trade_id already exists overwrites that entry in place, so a status
// transition updates the existing row instead of reordering the feed. Unknown
// ids are prepended. Records without a trade_id are rejected and logged; the
// collection is left untouched.
func (r *Reconciler) Merge(rec models.TradeRecord) {
	if rec.TradeID == "" {
		r.logger.Warn("Rejected trade record without trade_id")
		return
	}

	r.mu.Lock()

	replaced := false
	for i := range r.trades {
		if r.trades[i].TradeID == rec.TradeID {
			r.trades[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		r.trades = append([]models.TradeRecord{rec}, r.trades...)
		if len(r.trades) > r.maxTrades {
			r.trades = r.trades[:r.maxTrades]
		}
	}

	snapshot := r.snapshotLocked()
	r.persistLocked(snapshot)
	r.mu.Unlock()

	if replaced {
		r.logger.Debugf("Updated trade %s -> %s", rec.TradeID, rec.Status)
	} else {
		r.logger.Debugf("Added trade %s (%s)", rec.TradeID, rec.Status)
	}
	r.notify(snapshot)
}

// ReplaceAll seeds the collection wholesale and records its provenance. Only
// the history loader calls this; per-record merge semantics do not apply.
func (r *Reconciler) ReplaceAll(recs []models.TradeRecord, source Source) {
	r.mu.Lock()

	r.trades = make([]models.TradeRecord, len(recs))
	copy(r.trades, recs)
	if len(r.trades) > r.maxTrades {
		r.trades = r.trades[:r.maxTrades]
	}
	r.source = source

	snapshot := r.snapshotLocked()
	r.persistLocked(snapshot)
	r.mu.Unlock()

	r.notify(snapshot)
}

// Clear empties the collection, removes the cache entry and resets provenance.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	r.trades = nil
	r.source = SourceNone
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Delete(StorageKey); err != nil {
			r.logger.Warnf("Failed to delete cached trades: %v", err)
		}
	}
	r.logger.Info("Trade collection cleared")
	r.notify([]models.TradeRecord{})
}

// SetSource records provenance without touching the collection. The history
// loader uses this on fallback paths that leave the collection as-is.
func (r *Reconciler) SetSource(source Source) {
	r.mu.Lock()
	r.source = source
	r.mu.Unlock()
}

// Snapshot returns a copy of the current collection, newest-merge-first.
func (r *Reconciler) Snapshot() []models.TradeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Len returns the current collection size.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trades)
}

// Source returns the provenance of the current collection.
func (r *Reconciler) Source() Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source
}

// Subscribe registers an observer that receives a snapshot copy after every
// mutation. Sends never block; a subscriber that falls behind misses
// intermediate snapshots but always gets a later, newer one.
func (r *Reconciler) Subscribe() (int, <-chan []models.TradeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	ch := make(chan []models.TradeRecord, 16)
	r.subs[id] = ch
	return id, ch
}

// Unsubscribe removes an observer and closes its channel.
func (r *Reconciler) Unsubscribe(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.subs[id]; ok {
		delete(r.subs, id)
		close(ch)
	}
}

func (r *Reconciler) snapshotLocked() []models.TradeRecord {
	out := make([]models.TradeRecord, len(r.trades))
	copy(out, r.trades)
	return out
}

// persistLocked mirrors the collection into the cache. A failed write is
// logged and ignored; the in-memory state stays authoritative.
func (r *Reconciler) persistLocked(snapshot []models.TradeRecord) {
	if r.store == nil {
		return
	}
	if err := r.store.Put(StorageKey, snapshot); err != nil {
		r.logger.Warnf("Failed to persist trades: %v", err)
	}
}

func (r *Reconciler) notify(snapshot []models.TradeRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ch := range r.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
