// Package cache mirrors the last measurement observed for every set.
//
// The instrument only exposes its most recent measurement; the cache keeps
// one record per set so any set can be read at any time. Records are only
// ever replaced whole. Deactivating a set never purges its record.
package cache

import (
	"fmt"
	"time"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
)

// Entry is a cached record with its freshness metadata.
type Entry struct {
	Measurement types.ChannelMeasurement
	Valid       bool
	Sequence    uint64 // cache-wide update counter, 0 until the first update
	UpdatedAt   time.Time
}

// Cache is not safe for concurrent use; the controller serializes access.
type Cache struct {
	entries  [types.NumSets]Entry
	sequence uint64
	now      func() time.Time
}

func New() *Cache {
	return &Cache{now: time.Now}
}

// Update replaces the record of a set and marks it valid.
func (c *Cache) Update(set int, m types.ChannelMeasurement) error {
	if err := types.CheckSetIndex(set); err != nil {
		return err
	}

	c.sequence++
	c.entries[set] = Entry{
		Measurement: m,
		Valid:       true,
		Sequence:    c.sequence,
		UpdatedAt:   c.now(),
	}
	return nil
}

// Read returns the last record attributed to a set.
func (c *Cache) Read(set int) (types.ChannelMeasurement, error) {
	if err := types.CheckSetIndex(set); err != nil {
		return types.ChannelMeasurement{}, err
	}

	e := c.entries[set]
	if !e.Valid {
		return types.ChannelMeasurement{}, fmt.Errorf("%w %d: wait for the next transfer and make sure the set is active", types.ErrNoDataYet, set)
	}
	return e.Measurement, nil
}

func (c *Cache) Entry(set int) (Entry, error) {
	if err := types.CheckSetIndex(set); err != nil {
		return Entry{}, err
	}
	return c.entries[set], nil
}

// ReadAll returns every valid record keyed by set index.
func (c *Cache) ReadAll() map[int]types.ChannelMeasurement {
	all := make(map[int]types.ChannelMeasurement)
	for i, e := range c.entries {
		if e.Valid {
			all[i] = e.Measurement
		}
	}
	return all
}

// Latest returns the set updated most recently, or false when the cache is
// empty.
func (c *Cache) Latest() (int, Entry, bool) {
	best := -1
	for i, e := range c.entries {
		if e.Valid && (best < 0 || e.Sequence > c.entries[best].Sequence) {
			best = i
		}
	}
	if best < 0 {
		return 0, Entry{}, false
	}
	return best, c.entries[best], true
}
