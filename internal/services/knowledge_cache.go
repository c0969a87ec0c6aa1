package services

import (
	"sync"
	"time"

	"engram/internal/memerr"
	"engram/internal/models"

	"github.com/patrickmn/go-cache"
)

// KnowledgeCache is a key/value store with optional absolute expiry,
// independent of the project graph. Eviction is lazy: an expired item is
// removed on the read that observes it, never by a background sweep (the
// backing cache is constructed with a zero cleanup interval so no janitor
// goroutine runs). Expired-but-unread entries stay physically present until
// touched, an accepted trade-off that keeps stores and reads allocation-light.
type KnowledgeCache struct {
	mu    sync.Mutex // serializes read-modify-write across Store/Retrieve
	items *cache.Cache

	bus     *EventBus
	metrics *Metrics
}

// NewKnowledgeCache creates an empty knowledge cache.
func NewKnowledgeCache(bus *EventBus, metrics *Metrics) *KnowledgeCache {
	return &KnowledgeCache{
		items:   cache.New(cache.NoExpiration, 0),
		bus:     bus,
		metrics: metrics,
	}
}

// StoreOptions carries the optional fields for a knowledge upsert.
type StoreOptions struct {
	ExpiresAt *time.Time             `json:"expires_at,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Store upserts a knowledge item. An existing unexpired item keeps its
// CreatedAt; storing over an expired item starts a fresh record.
func (k *KnowledgeCache) Store(key string, value interface{}, opts StoreOptions) error {
	if key == "" {
		k.metrics.recordError("validation")
		return memerr.Validation("knowledge key is required")
	}

	now := time.Now()
	ttl := cache.NoExpiration
	if opts.ExpiresAt != nil {
		if !opts.ExpiresAt.After(now) {
			k.metrics.recordError("validation")
			return memerr.Validation("knowledge expiry %s is in the past", opts.ExpiresAt.Format(time.RFC3339))
		}
		ttl = time.Until(*opts.ExpiresAt)
	}

	k.mu.Lock()
	item := &models.KnowledgeItem{
		Key:       key,
		Value:     value,
		Metadata:  opts.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: opts.ExpiresAt,
	}
	if existing, found := k.items.Get(key); found {
		if prev, ok := existing.(*models.KnowledgeItem); ok {
			item.CreatedAt = prev.CreatedAt
		}
	}
	k.items.Set(key, item, ttl)
	k.mu.Unlock()

	k.metrics.recordOp("knowledge", "store")
	k.bus.publishEntity(models.EventKnowledgeStored, "knowledge", key, "")
	return nil
}

// Retrieve returns a copy of the item for key, or found=false when the key is
// absent or its expiry has passed. Reading an expired item evicts it.
func (k *KnowledgeCache) Retrieve(key string) (*models.KnowledgeItem, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	value, found := k.items.Get(key)
	if !found {
		// Absent or expired; Delete evicts the expired record if one remains.
		k.items.Delete(key)
		return nil, false
	}

	item, ok := value.(*models.KnowledgeItem)
	if !ok {
		return nil, false
	}
	k.metrics.recordOp("knowledge", "retrieve")
	return item.Clone(), true
}

// Count returns the number of unexpired items.
func (k *KnowledgeCache) Count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	// Items() excludes expired entries, unlike ItemCount().
	return len(k.items.Items())
}

// Export returns deep copies of all unexpired items for snapshotting.
func (k *KnowledgeCache) Export() map[string]*models.KnowledgeItem {
	k.mu.Lock()
	defer k.mu.Unlock()

	raw := k.items.Items()
	out := make(map[string]*models.KnowledgeItem, len(raw))
	for key, entry := range raw {
		if item, ok := entry.Object.(*models.KnowledgeItem); ok {
			out[key] = item.Clone()
		}
	}
	return out
}

// Replace swaps in loaded items, discarding current state. Items already
// expired at load time are dropped rather than resurrected.
func (k *KnowledgeCache) Replace(items map[string]*models.KnowledgeItem) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	k.items = cache.New(cache.NoExpiration, 0)
	for key, item := range items {
		if item == nil || item.Expired(now) {
			continue
		}
		ttl := cache.NoExpiration
		if item.ExpiresAt != nil {
			ttl = item.ExpiresAt.Sub(now)
		}
		k.items.Set(key, item, ttl)
	}
}
