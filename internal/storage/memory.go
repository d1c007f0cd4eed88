package storage

import (
	"context"

	"flightops/internal/flightplan"
	"flightops/internal/logbook"
	"flightops/internal/provision"
	"flightops/internal/refdata"
)

type (
	ledgerStore = logbook.MemoryStore
	planStore   = flightplan.MemoryStore
)

// MemoryDB is the in-process backend. Nothing survives a restart.
type MemoryDB struct {
	*refdata.Catalog
	*ledgerStore
	*planStore
	*provision.MemoryDirectory
}

// NewMemoryDB returns an empty in-process backend whose ledger advances the catalog's
// airframe hours.
func NewMemoryDB() *MemoryDB {
	catalog := refdata.NewCatalog()
	return &MemoryDB{
		Catalog:         catalog,
		ledgerStore:     logbook.NewMemoryStore(catalog),
		planStore:       flightplan.NewMemoryStore(),
		MemoryDirectory: provision.NewMemoryDirectory(),
	}
}

// ListAerodromes returns every aerodrome in the catalog.
func (m *MemoryDB) ListAerodromes(context.Context) ([]refdata.Aerodrome, error) {
	return m.Catalog.Aerodromes(), nil
}

// Close is a no-op.
func (m *MemoryDB) Close() error {
	return nil
}
