package store

import "time"

// Record is the contract every stored entity satisfies, normally by
// embedding Meta.
type Record interface {
	RecordID() string
	SetRecordID(id string)
	Created() time.Time
	StampCreated(t time.Time)
	StampUpdated(t time.Time)
}

// Meta carries the identity and bookkeeping timestamps shared by all
// records. Embed it as the first field of an entity struct.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (m *Meta) RecordID() string { return m.ID }

func (m *Meta) SetRecordID(id string) { m.ID = id }

func (m *Meta) Created() time.Time { return m.CreatedAt }

func (m *Meta) StampCreated(t time.Time) { m.CreatedAt = t }

func (m *Meta) StampUpdated(t time.Time) { m.UpdatedAt = t }

// Updated returns the last-modified timestamp.
func (m *Meta) Updated() time.Time { return m.UpdatedAt }
