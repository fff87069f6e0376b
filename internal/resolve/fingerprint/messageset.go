package fingerprint

import "github.com/ampio/canresolve/internal/model"

// MessageSet groups every message sharing a SetKey (spec.md §3). bus_load
// is kept as a running sum so merge/split never need to re-scan messages
// just to check capacity.
type MessageSet struct {
	Key      SetKey
	Messages []*model.Message
	// Loads holds each Messages[i]'s own steady-state bus-load contribution,
	// so merge and split can recombine sets without recomputing DLC/interval.
	Loads   []float64
	BusLoad float64 // bits/s, sum of Loads
}

// Collection is an insertion-ordered set of MessageSets keyed by SetKey, the
// working state the merger and splitter mutate in place (spec.md §5).
type Collection struct {
	order []SetKey
	byKey map[SetKey]*MessageSet
}

// NewCollection returns an empty Collection.
func NewCollection() *Collection {
	return &Collection{byKey: make(map[SetKey]*MessageSet)}
}

// Insert builds the SetKey for m and either appends to the existing
// MessageSet or creates a new one (spec.md §4.1). load is the message's
// precomputed steady-state bus-load contribution.
func (c *Collection) Insert(m *model.Message, load float64) {
	key := KeyOf(m)
	set, ok := c.byKey[key]
	if !ok {
		set = &MessageSet{Key: key}
		c.byKey[key] = set
		c.order = append(c.order, key)
	}
	set.Messages = append(set.Messages, m)
	set.Loads = append(set.Loads, load)
	set.BusLoad += load
}

// Sets returns the current MessageSets in insertion order.
func (c *Collection) Sets() []*MessageSet {
	out := make([]*MessageSet, 0, len(c.order))
	for _, k := range c.order {
		if s, ok := c.byKey[k]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of distinct sets currently held.
func (c *Collection) Len() int { return len(c.Sets()) }

// Remove drops the set with the given key.
func (c *Collection) Remove(key SetKey) {
	delete(c.byKey, key)
}

// Replace removes oldKeys and inserts newSet under its own key, appending it
// to the end of the insertion order (the merge successor convention of
// spec.md §4.3). If newSet.Key already belongs to a surviving set that is not
// among oldKeys, that set's messages and loads are folded into newSet so that
// no message is dropped.
func (c *Collection) Replace(oldKeys []SetKey, newSet *MessageSet) {
	_, alreadyTracked := c.byKey[newSet.Key]
	for _, k := range oldKeys {
		delete(c.byKey, k)
	}
	if other, ok := c.byKey[newSet.Key]; ok {
		newSet.Messages = append(newSet.Messages, other.Messages...)
		newSet.Loads = append(newSet.Loads, other.Loads...)
		newSet.BusLoad += other.BusLoad
	}
	c.byKey[newSet.Key] = newSet
	if !alreadyTracked {
		c.order = append(c.order, newSet.Key)
	}
}

// InsertUnique adds set to the collection, assigning the next free Shard on
// its key if the key (at Shard 0) is already taken by a different set. This
// is how the splitter introduces multiple sets that share an identical
// fingerprint after dividing an oversized group (spec.md §4.4).
func (c *Collection) InsertUnique(set *MessageSet) {
	base := set.Key
	base.Shard = 0
	key := base
	for {
		if _, taken := c.byKey[key]; !taken {
			break
		}
		key.Shard++
	}
	set.Key = key
	c.byKey[key] = set
	c.order = append(c.order, key)
}
