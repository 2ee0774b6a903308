// Package remap translates POD trees between the legacy v0 wire
// vocabulary and the current v2 one, per connection.
package remap

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// TypeRow is one entry of the global, compile-time-known type table: a
// v2 numeric identifier paired with the legacy string name a v0 peer
// uses to refer to the same concept.
type TypeRow struct {
	ID      uint32
	Name    string
	Comment string
}

// GlobalTypes is the fixed vocabulary this build understands. Index
// into this slice is the "v0 index" spec.md refers to: the position a
// v0 peer's own table would occupy if it enumerated rows in the same
// order. It is never mutated at runtime.
var GlobalTypes = []TypeRow{
	{ID: 1, Name: "Int", Comment: "32-bit signed integer"},
	{ID: 2, Name: "Long", Comment: "64-bit signed integer"},
	{ID: 3, Name: "Float", Comment: "32-bit IEEE-754"},
	{ID: 4, Name: "Double", Comment: "64-bit IEEE-754"},
	{ID: 5, Name: "String", Comment: "NUL-terminated UTF-8"},
	{ID: 6, Name: "Bytes", Comment: "opaque byte array"},
	{ID: 7, Name: "Rectangle", Comment: "width, height"},
	{ID: 8, Name: "Fraction", Comment: "numerator, denominator"},
	{ID: 9, Name: "Bitmap", Comment: "legacy pixel buffer identifier"},
	{ID: 10, Name: "Fd", Comment: "file descriptor"},
	{ID: 11, Name: "Audio", Comment: "media type: audio"},
	{ID: 12, Name: "Video", Comment: "media type: video"},
	{ID: 13, Name: "Raw", Comment: "media subtype: raw"},
	{ID: 14, Name: "Encoded", Comment: "media subtype: encoded"},
	{ID: 100, Name: "Format", Comment: "object type: media format"},
	{ID: 101, Name: "Command", Comment: "object type: control-channel command"},
}

func globalIndexByID(id uint32) (int, bool) {
	for i, row := range GlobalTypes {
		if row.ID == id {
			return i, true
		}
	}
	return -1, false
}

func globalIndexByName(name string) (int, bool) {
	for i, row := range GlobalTypes {
		if row.Name == name {
			return i, true
		}
	}
	return -1, false
}

// ErrInvalidIdentifier is returned when a v0 slot or v2 id has no
// corresponding row in the global table.
var ErrInvalidIdentifier = fmt.Errorf("remap: invalid identifier")

// ErrUninitialised is returned by any ClientTypes lookup attempted
// before Install has run for that client.
var ErrUninitialised = fmt.Errorf("remap: client type table not yet installed")

// ClientTypes is the per-connection dynamic map from a peer's v0 slot
// numbering (announced via UpdateTypes) to this build's global table
// rows. It memoizes slot-to-row lookups behind a bounded LRU — a pure
// performance layer; every miss falls back to the slot map Install
// built and repopulates the cache, exactly as the teacher's SSH agent bounds its host-auth
// callback map.
type ClientTypes struct {
	mu          sync.Mutex
	installed   bool
	slotToIndex map[uint32]int
	cache       *lru.Cache
}

// NewClientTypes constructs an uninitialised client map. Install must
// be called once, at connection start, before any translation.
func NewClientTypes() *ClientTypes {
	cache, err := lru.New(len(GlobalTypes) + 1)
	if err != nil {
		// len(GlobalTypes)+1 is always > 0; lru.New only errors on
		// a non-positive size.
		panic(err)
	}
	return &ClientTypes{cache: cache}
}

// Install processes an UpdateTypes announcement: firstID..firstID+n-1
// are the peer's v0 slots, names gives the legacy string name for each
// in order. Each name is matched against the global table to recover
// its row; unmatched names are silently skipped (the peer may know
// about legacy types this build has retired).
func (c *ClientTypes) Install(firstID uint32, names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slotToIndex = make(map[uint32]int, len(names))
	for i, name := range names {
		if idx, ok := globalIndexByName(name); ok {
			c.slotToIndex[firstID+uint32(i)] = idx
		}
	}
	c.installed = true
}

// FromV0 recovers the v2 identifier for a peer's v0 slot.
func (c *ClientTypes) FromV0(slot uint32) (uint32, error) {
	row, err := c.v0Row(slot)
	if err != nil {
		return 0, err
	}
	return GlobalTypes[row].ID, nil
}

// FromV2 finds the v0 slot (global-table row index) a v2 identifier
// maps to; it consults no per-client state.
// Unlike FromV0 this does not require Install to have run first: the
// global table is indexable directly (spec.md's from_v2 "iterate the
// global table to find the row with that id").
func FromV2(id uint32) (uint32, error) {
	idx, ok := globalIndexByID(id)
	if !ok {
		return 0, ErrInvalidIdentifier
	}
	return uint32(idx), nil
}

func (c *ClientTypes) v0Row(slot uint32) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.installed {
		return 0, ErrUninitialised
	}
	if v, ok := c.cache.Get(slot); ok {
		return v.(int), nil
	}
	idx, ok := c.slotToIndex[slot]
	if !ok {
		return 0, ErrInvalidIdentifier
	}
	c.cache.Add(slot, idx)
	return idx, nil
}
