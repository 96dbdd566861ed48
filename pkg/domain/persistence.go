package domain

import "context"

// ObjectRecord is the wire form of one graph container inside an object batch.
type ObjectRecord struct {
	Key     string         `json:"key"`
	Tag     Tag            `json:"tag"`
	Indices []int          `json:"indices"`
	Symbol  Symbol         `json:"symbol,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// ReferenceSet carries every resolved target of one source container.
type ReferenceSet struct {
	Source  string   `json:"source"`
	Targets []string `json:"targets"`
}

// PersistedHandle is the canonical store identifier of a committed entity.
type PersistedHandle struct {
	Key string `json:"key"`
	Tag Tag    `json:"tag"`
	ID  int64  `json:"id"`
}

// RemoteStore is the persistence boundary consumed by the batched writer.
// Every call is synchronous and all-or-nothing; nothing becomes durable until
// Commit succeeds.
type RemoteStore interface {
	UpdateObjects(ctx context.Context, batch []ObjectRecord) error
	UpdateReferences(ctx context.Context, batch []ReferenceSet) error
	Commit(ctx context.Context) ([]PersistedHandle, error)
}

// Aborter is implemented by stores able to discard staged, uncommitted writes.
type Aborter interface {
	Abort(ctx context.Context) error
}

// Pinger is implemented by stores whose connection benefits from keep-alive probes.
type Pinger interface {
	Ping(ctx context.Context) error
}
