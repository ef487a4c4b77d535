package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"archivist/internal/container"
	"archivist/internal/identity"
	id "archivist/pkg/domain"
	"archivist/pkg/platform/sentinel"
)

const principalSelect = `SELECT p.id, p.username, p.display_name, p.email, p.role,
		p.status, p.password_hash, p.created_at,
		COALESCE(array_agg(pu.unit_id::text) FILTER (WHERE pu.unit_id IS NOT NULL), '{}')
	FROM principals p
	LEFT JOIN principal_units pu ON pu.principal_id = p.id`

func (s *Store) FindPrincipal(ctx context.Context, principalID id.PrincipalID) (*identity.Principal, error) {
	return s.findPrincipal(ctx, principalSelect+` WHERE p.id = $1 GROUP BY p.id`, uuid.UUID(principalID))
}

func (s *Store) FindPrincipalByUsername(ctx context.Context, username string) (*identity.Principal, error) {
	return s.findPrincipal(ctx, principalSelect+` WHERE p.username = $1 GROUP BY p.id`, username)
}

func (s *Store) findPrincipal(ctx context.Context, query string, arg any) (*identity.Principal, error) {
	var (
		p      identity.Principal
		pID    uuid.UUID
		status string
		units  pq.StringArray
	)
	err := s.exec(ctx).QueryRowContext(ctx, query, arg).
		Scan(&pID, &p.Username, &p.DisplayName, &p.Email, &p.Role, &status, &p.PasswordHash,
			&p.CreatedAt, &units)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", translate(err))
	}
	unitIDs, err := parseUUIDs[id.UnitID](units)
	if err != nil {
		return nil, fmt.Errorf("parse principal units: %w", err)
	}
	p.ID = id.PrincipalID(pID)
	p.Status = identity.Status(status)
	p.Units = unitIDs
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// SetPrincipalStatus is the soft lifecycle change; principals are never
// deleted.
func (s *Store) SetPrincipalStatus(ctx context.Context, principalID id.PrincipalID, status identity.Status) error {
	res, err := s.exec(ctx).ExecContext(ctx, `UPDATE principals SET status = $2 WHERE id = $1`,
		uuid.UUID(principalID), string(status))
	if err != nil {
		return fmt.Errorf("set principal status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("set principal status: %w", err)
	} else if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// UpsertUnit, UpsertLocation and UpsertPrincipal load directory fixtures.
// Reapplying the same fixture is a no-op apart from refreshed names.
func (s *Store) UpsertUnit(ctx context.Context, u identity.Unit) error {
	_, err := s.exec(ctx).ExecContext(ctx, `INSERT INTO units (id, code, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, uuid.UUID(u.ID), u.Code, u.Name)
	if err != nil {
		return fmt.Errorf("upsert unit %s: %w", u.Code, err)
	}
	return nil
}

func (s *Store) UpsertLocation(ctx context.Context, l container.Location) error {
	_, err := s.exec(ctx).ExecContext(ctx, `INSERT INTO storage_locations
		(id, unit_id, unit_code, room, rack, compartment, shelf) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		uuid.UUID(l.ID), uuid.UUID(l.UnitID), l.UnitCode, l.Room, l.Rack, l.Compartment, l.Shelf)
	if err != nil {
		return fmt.Errorf("upsert location %s: %w", l.FullLocation(), err)
	}
	return nil
}

func (s *Store) UpsertPrincipal(ctx context.Context, p identity.Principal) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.exec(ctx).ExecContext(ctx, `INSERT INTO principals
			(id, username, display_name, email, role, status, password_hash, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name,
				email = EXCLUDED.email, role = EXCLUDED.role`,
			uuid.UUID(p.ID), p.Username, p.DisplayName, p.Email, p.Role, string(p.Status),
			p.PasswordHash, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert principal %s: %w", p.Username, err)
		}
		for _, unit := range p.Units {
			if _, err := s.exec(ctx).ExecContext(ctx, `INSERT INTO principal_units (principal_id, unit_id)
				VALUES ($1, $2) ON CONFLICT DO NOTHING`, uuid.UUID(p.ID), uuid.UUID(unit)); err != nil {
				return fmt.Errorf("assign principal %s to unit: %w", p.Username, err)
			}
		}
		return nil
	})
}
