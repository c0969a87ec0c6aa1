package models

import "time"

// KnowledgeItem is a key/value entry with optional absolute expiry,
// independent of the project graph. An item whose expiry has passed is
// treated as absent by readers even if still physically present.
type KnowledgeItem struct {
	Key      string                 `json:"key"`
	Value    interface{}            `json:"value"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the item's expiry has passed at the given time.
func (k *KnowledgeItem) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// Clone returns a deep copy of the item.
func (k *KnowledgeItem) Clone() *KnowledgeItem {
	cp := *k
	cp.Metadata = cloneMap(k.Metadata)
	if k.ExpiresAt != nil {
		at := *k.ExpiresAt
		cp.ExpiresAt = &at
	}
	return &cp
}
