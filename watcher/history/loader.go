// Package history establishes the initial trade collection exactly once per
// process start, preferring authoritative backend data and degrading to the
// persistent local cache. It runs independently of the live stream: history
// sets the base, the stream only updates from that point forward.
package history

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/solwatch/tradewatch/shared/cache"
	"github.com/solwatch/tradewatch/shared/models"
	"github.com/solwatch/tradewatch/watcher/reconcile"
)

// HistorySource is the part of the backend client the loader depends on.
type HistorySource interface {
	TradeHistory(ctx context.Context, limit int) (*models.TradeHistoryResponse, error)
}

// Loader seeds the reconciler from the backend or the local cache.
type Loader struct {
	source HistorySource
	store  *cache.Store
	rec    *reconcile.Reconciler
	limit  int
	logger *logrus.Entry
}

// NewLoader creates a loader bounded to limit records, matching the live
// collection's maximum.
func NewLoader(source HistorySource, store *cache.Store, rec *reconcile.Reconciler, limit int, logger *logrus.Logger) *Loader {
	return &Loader{
		source: source,
		store:  store,
		rec:    rec,
		limit:  limit,
		logger: logger.WithField("component", "history"),
	}
}

// Load runs the backend-then-cache fallback sequence and returns the
// resulting provenance. Every failure branch is swallowed and logged; the
// caller always ends up with some collection (possibly empty).
func (l *Loader) Load(ctx context.Context) reconcile.Source {
	resp, err := l.source.TradeHistory(ctx, l.limit)
	if err == nil && resp != nil && len(resp.Trades) > 0 {
		l.logger.Infof("Loaded %d trades from backend", len(resp.Trades))
		l.rec.ReplaceAll(resp.Trades, reconcile.SourceBackend)
		return reconcile.SourceBackend
	}
	if err != nil {
		l.logger.Warnf("Backend history unavailable, falling back to cache: %v", err)
	} else {
		l.logger.Info("Backend returned no trades, falling back to cache")
	}

	return l.loadFromCache()
}

// loadFromCache reads the cached collection. A structurally invalid entry is
// deleted so the corruption does not resurface on every restart.
func (l *Loader) loadFromCache() reconcile.Source {
	if l.store == nil {
		l.rec.SetSource(reconcile.SourceNone)
		return reconcile.SourceNone
	}

	var cached []models.TradeRecord
	found, err := l.store.Get(reconcile.StorageKey, &cached)
	if !found && err == nil {
		l.logger.Info("No cached trades")
		l.rec.SetSource(reconcile.SourceNone)
		return reconcile.SourceNone
	}
	if err != nil || !structurallyValid(cached) {
		l.logger.Warnf("Cached trades invalid, discarding entry (err=%v)", err)
		if delErr := l.store.Delete(reconcile.StorageKey); delErr != nil {
			l.logger.Warnf("Failed to discard cached trades: %v", delErr)
		}
		l.rec.SetSource(reconcile.SourceNone)
		return reconcile.SourceNone
	}

	l.logger.Infof("Loaded %d trades from local cache", len(cached))
	l.rec.ReplaceAll(cached, reconcile.SourceLocalStorage)
	return reconcile.SourceLocalStorage
}

// structurallyValid checks the cached shape: every element must carry a
// trade_id. Anything else is treated as corruption.
func structurallyValid(recs []models.TradeRecord) bool {
	for _, rec := range recs {
		if rec.TradeID == "" {
			return false
		}
	}
	return true
}
