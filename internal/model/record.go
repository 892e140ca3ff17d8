package model

import "time"

// Stamped is implemented by every persisted entity. Repositories call the
// hooks right before an INSERT or UPDATE so the row and the in-memory value
// agree on the timestamps that were written.
type Stamped interface {
	TouchCreated(now time.Time)
	TouchUpdated(now time.Time)
}

// Timestamps backs tables with both created_at and updated_at columns.
type Timestamps struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Timestamps) TouchCreated(now time.Time) {
	t.CreatedAt = now
	t.UpdatedAt = now
}

func (t *Timestamps) TouchUpdated(now time.Time) { t.UpdatedAt = now }

// CreatedOnly backs append-style tables that never record an update time.
type CreatedOnly struct {
	CreatedAt time.Time
}

func (c *CreatedOnly) TouchCreated(now time.Time) { c.CreatedAt = now }

func (c *CreatedOnly) TouchUpdated(time.Time) {}
