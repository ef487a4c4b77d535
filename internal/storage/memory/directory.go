package memory

import (
	"context"
	"fmt"
	"slices"

	"archivist/internal/container"
	"archivist/internal/identity"
	id "archivist/pkg/domain"
	"archivist/pkg/platform/sentinel"
)

// SeedUnit, SeedPrincipal and SeedLocation load master data. They are used by
// bootstrap code and tests; the workflow only reads these records.
func (db *DB) SeedUnit(u identity.Unit) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.units[u.ID] = &u
}

func (db *DB) SeedPrincipal(p identity.Principal) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p.Units = slices.Clone(p.Units)
	db.principals[p.ID] = &p
}

func (db *DB) SeedLocation(l container.Location) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.locations[l.ID] = &l
}

// SetPrincipalStatus changes an account status, e.g. to suspend a signer.
func (db *DB) SetPrincipalStatus(ctx context.Context, principalID id.PrincipalID, status identity.Status) error {
	record, unlock := db.write(ctx)
	defer unlock()
	p, ok := db.principals[principalID]
	if !ok {
		return sentinel.ErrNotFound
	}
	prev := p.Status
	p.Status = status
	record(func() { p.Status = prev })
	return nil
}

func (db *DB) FindPrincipal(ctx context.Context, principalID id.PrincipalID) (*identity.Principal, error) {
	defer db.read(ctx)()
	p, ok := db.principals[principalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *p
	out.Units = slices.Clone(p.Units)
	return &out, nil
}

func (db *DB) FindUnit(ctx context.Context, unitID id.UnitID) (*identity.Unit, error) {
	defer db.read(ctx)()
	u, ok := db.units[unitID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (db *DB) FindLocation(ctx context.Context, locationID id.LocationID) (*container.Location, error) {
	defer db.read(ctx)()
	l, ok := db.locations[locationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *l
	return &out, nil
}

// NextBarcodeSequence hands out 1, 2, 3... per unit code and year.
func (db *DB) NextBarcodeSequence(ctx context.Context, unitCode string, year int) (int, error) {
	record, unlock := db.write(ctx)
	defer unlock()
	key := fmt.Sprintf("%s/%d", unitCode, year)
	prev := db.barcodes[key]
	db.barcodes[key] = prev + 1
	record(func() { db.barcodes[key] = prev })
	return prev + 1, nil
}

func (db *DB) FindPrincipalByUsername(ctx context.Context, username string) (*identity.Principal, error) {
	defer db.read(ctx)()
	for _, p := range db.principals {
		if p.Username == username {
			out := *p
			out.Units = slices.Clone(p.Units)
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// UpsertUnit, UpsertLocation and UpsertPrincipal are the context-aware
// seeding entry points shared with the Postgres store.
func (db *DB) UpsertUnit(_ context.Context, u identity.Unit) error {
	db.SeedUnit(u)
	return nil
}

func (db *DB) UpsertLocation(_ context.Context, l container.Location) error {
	db.SeedLocation(l)
	return nil
}

func (db *DB) UpsertPrincipal(_ context.Context, p identity.Principal) error {
	db.SeedPrincipal(p)
	return nil
}
