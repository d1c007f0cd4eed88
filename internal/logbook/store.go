package logbook

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrStaleVersion is returned by a Store when a mutation's expected version no longer matches
// the stored logbook, or when the entry it targets has disappeared. Nothing is written.
var ErrStaleVersion = errors.New("logbook: stale version")

// Mutation is a conditional update of a logbook's running total.
type Mutation struct {
	LogbookID       string
	Registration    string
	ExpectedVersion int64
	CurrentHours    decimal.Decimal // New value of Logbook.CurrentHours.
	Delta           decimal.Decimal // Applied to the aircraft's airframe hours.
	At              time.Time
}

// Store persists logbooks and entries.
//
// Finders return (nil, nil) when the record does not exist. AppendEntry and DeleteEntry must
// apply the entry change, the logbook update (CurrentHours, Version+1) and the airframe-hour
// delta as one atomic unit, and only if the logbook is still at ExpectedVersion.
type Store interface {
	FindLogbook(ctx context.Context, key Key) (*Logbook, error)
	GetLogbook(ctx context.Context, id string) (*Logbook, error)
	ListLogbooks(ctx context.Context, month, year int) ([]Logbook, error)

	// CreateLogbook inserts lb unless a logbook with the same key exists, in which case the
	// existing one is returned with created == false.
	CreateLogbook(ctx context.Context, lb Logbook) (stored Logbook, created bool, err error)

	GetEntry(ctx context.Context, id string) (*Entry, error)
	// ListEntries returns a logbook's entries in insertion order.
	ListEntries(ctx context.Context, logbookID string) ([]Entry, error)

	AppendEntry(ctx context.Context, m Mutation, e Entry) (Entry, error)
	DeleteEntry(ctx context.Context, m Mutation, entryID string) error
}

// EventType names a ledger event.
type EventType string

const (
	EventLogbookCreated EventType = "logbook_created"
	EventEntryAppended  EventType = "entry_appended"
	EventEntryDeleted   EventType = "entry_deleted"
)

// Event describes a committed ledger change.
type Event struct {
	Type         EventType       `json:"type"`
	LogbookID    string          `json:"logbook_id"`
	EntryID      string          `json:"entry_id,omitempty"`
	Registration string          `json:"registration"`
	Month        int             `json:"month"`
	Year         int             `json:"year"`
	Delta        decimal.Decimal `json:"delta"`
	CurrentHours decimal.Decimal `json:"current_hours"`
	Allowance    decimal.Decimal `json:"allowance"`
	At           time.Time       `json:"at"`
}

// Publisher receives ledger events after they are committed. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
