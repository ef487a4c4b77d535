package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"archivist/internal/container"
	"archivist/internal/identity"
	"archivist/internal/workflow/models"
	id "archivist/pkg/domain"
	"archivist/pkg/platform/sentinel"
)

const containerColumns = `id, unit_id, barcode, status, location_id, destruction_date, retained,
	created_by, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContainer(row rowScanner) (*container.Container, error) {
	var (
		c               container.Container
		containerID     uuid.UUID
		unitID          uuid.UUID
		createdBy       uuid.UUID
		locationID      uuid.NullUUID
		destructionDate sql.NullTime
		status          string
	)
	if err := row.Scan(&containerID, &unitID, &c.Barcode, &status, &locationID, &destructionDate,
		&c.Retained, &createdBy, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = id.ContainerID(containerID)
	c.UnitID = id.UnitID(unitID)
	c.CreatedBy = id.PrincipalID(createdBy)
	c.Status = container.Status(status)
	c.LocationID = fromNullUUID[id.LocationID](locationID)
	c.DestructionDate = fromNullTime(destructionDate)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (s *Store) CreateContainer(ctx context.Context, c *container.Container) error {
	_, err := s.exec(ctx).ExecContext(ctx, `INSERT INTO containers (`+containerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(c.ID), uuid.UUID(c.UnitID), c.Barcode, string(c.Status), nullUUID(c.LocationID),
		c.DestructionDate, c.Retained, uuid.UUID(c.CreatedBy), c.Version, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create container: %w", translate(err))
	}
	return nil
}

func (s *Store) FindContainer(ctx context.Context, containerID id.ContainerID) (*container.Container, error) {
	row := s.exec(ctx).QueryRowContext(ctx,
		forUpdate(ctx, `SELECT `+containerColumns+` FROM containers WHERE id = $1`), uuid.UUID(containerID))
	c, err := scanContainer(row)
	if err != nil {
		return nil, fmt.Errorf("find container: %w", translate(err))
	}
	return c, nil
}

// UpdateContainer writes c when the stored version still equals c.Version,
// then advances c.Version.
func (s *Store) UpdateContainer(ctx context.Context, c *container.Container) error {
	res, err := s.exec(ctx).ExecContext(ctx, `UPDATE containers
		SET status = $3, location_id = $4, destruction_date = $5, retained = $6,
			version = version + 1, updated_at = $7
		WHERE id = $1 AND version = $2`,
		uuid.UUID(c.ID), c.Version, string(c.Status), nullUUID(c.LocationID), c.DestructionDate,
		c.Retained, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update container: %w", translate(err))
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update container: %w", err)
	} else if n == 0 {
		return sentinel.ErrConflict
	}
	c.Version++
	return nil
}

func (s *Store) AddItems(ctx context.Context, items []*container.Item) error {
	for _, it := range items {
		_, err := s.exec(ctx).ExecContext(ctx, `INSERT INTO contained_items
			(id, container_id, number, name, kind, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.UUID(it.ID), uuid.UUID(it.ContainerID), it.Number, it.Name, string(it.Kind),
			it.Description, it.CreatedAt)
		if err != nil {
			return fmt.Errorf("add item %s: %w", it.Number, translate(err))
		}
	}
	return nil
}

func (s *Store) ListItems(ctx context.Context, containerID id.ContainerID) ([]*container.Item, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `SELECT id, container_id, number, name, kind, description, created_at
		FROM contained_items WHERE container_id = $1 ORDER BY created_at, number`, uuid.UUID(containerID))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []*container.Item{}
	for rows.Next() {
		var (
			it          container.Item
			itemID, cID uuid.UUID
			kind        string
		)
		if err := rows.Scan(&itemID, &cID, &it.Number, &it.Name, &kind, &it.Description, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.ID = id.ItemID(itemID)
		it.ContainerID = id.ContainerID(cID)
		it.Kind = container.ItemKind(kind)
		it.CreatedAt = it.CreatedAt.UTC()
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (s *Store) FindLocation(ctx context.Context, locationID id.LocationID) (*container.Location, error) {
	var (
		l           container.Location
		lID, unitID uuid.UUID
	)
	err := s.exec(ctx).QueryRowContext(ctx, `SELECT id, unit_id, unit_code, room, rack, compartment, shelf
		FROM storage_locations WHERE id = $1`, uuid.UUID(locationID)).
		Scan(&lID, &unitID, &l.UnitCode, &l.Room, &l.Rack, &l.Compartment, &l.Shelf)
	if err != nil {
		return nil, fmt.Errorf("find location: %w", translate(err))
	}
	l.ID = id.LocationID(lID)
	l.UnitID = id.UnitID(unitID)
	return &l, nil
}

func (s *Store) FindUnit(ctx context.Context, unitID id.UnitID) (*identity.Unit, error) {
	var (
		u   identity.Unit
		uID uuid.UUID
	)
	err := s.exec(ctx).QueryRowContext(ctx, `SELECT id, code, name FROM units WHERE id = $1`, uuid.UUID(unitID)).
		Scan(&uID, &u.Code, &u.Name)
	if err != nil {
		return nil, fmt.Errorf("find unit: %w", translate(err))
	}
	u.ID = id.UnitID(uID)
	return &u, nil
}

// NextBarcodeSequence increments the per unit and year counter in place.
func (s *Store) NextBarcodeSequence(ctx context.Context, unitCode string, year int) (int, error) {
	var next int
	err := s.exec(ctx).QueryRowContext(ctx, `INSERT INTO barcode_sequences (unit_code, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (unit_code, year) DO UPDATE SET last_value = barcode_sequences.last_value + 1
		RETURNING last_value`, unitCode, year).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next barcode sequence: %w", err)
	}
	return next, nil
}

const requestColumns = `id, type, status, container_id, unit_id, requester_id, purpose,
	expected_return_at, full_withdrawal, item_ids, idempotency_key,
	approved_by, approved_at, allocated_by, allocated_at, issued_by, issued_at,
	returned_at, completed_at, version, created_at, updated_at`

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		r                                 models.Request
		requestID, containerID, unitID    uuid.UUID
		requesterID                       uuid.UUID
		typ, status                       string
		itemIDs                           pq.StringArray
		idemKey                           sql.NullString
		expectedReturn, approvedAt        sql.NullTime
		allocatedAt, issuedAt             sql.NullTime
		returnedAt, completedAt           sql.NullTime
		approvedBy, allocatedBy, issuedBy uuid.NullUUID
	)
	if err := row.Scan(&requestID, &typ, &status, &containerID, &unitID, &requesterID, &r.Purpose,
		&expectedReturn, &r.FullWithdrawal, &itemIDs, &idemKey,
		&approvedBy, &approvedAt, &allocatedBy, &allocatedAt, &issuedBy, &issuedAt,
		&returnedAt, &completedAt, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	items, err := parseUUIDs[id.ItemID](itemIDs)
	if err != nil {
		return nil, fmt.Errorf("parse item ids: %w", err)
	}
	if len(items) > 0 {
		r.ItemIDs = items
	}
	r.ID = id.RequestID(requestID)
	r.Type = models.Type(typ)
	r.Status = models.Status(status)
	r.ContainerID = id.ContainerID(containerID)
	r.UnitID = id.UnitID(unitID)
	r.RequesterID = id.PrincipalID(requesterID)
	r.IdempotencyKey = idemKey.String
	r.ExpectedReturnAt = fromNullTime(expectedReturn)
	r.ApprovedBy = fromNullUUID[id.PrincipalID](approvedBy)
	r.ApprovedAt = fromNullTime(approvedAt)
	r.AllocatedBy = fromNullUUID[id.PrincipalID](allocatedBy)
	r.AllocatedAt = fromNullTime(allocatedAt)
	r.IssuedBy = fromNullUUID[id.PrincipalID](issuedBy)
	r.IssuedAt = fromNullTime(issuedAt)
	r.ReturnedAt = fromNullTime(returnedAt)
	r.CompletedAt = fromNullTime(completedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func (s *Store) CreateRequest(ctx context.Context, r *models.Request) error {
	idemKey := sql.NullString{String: r.IdempotencyKey, Valid: r.IdempotencyKey != ""}
	_, err := s.exec(ctx).ExecContext(ctx, `INSERT INTO requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		uuid.UUID(r.ID), string(r.Type), string(r.Status), uuid.UUID(r.ContainerID), uuid.UUID(r.UnitID),
		uuid.UUID(r.RequesterID), r.Purpose, r.ExpectedReturnAt, r.FullWithdrawal,
		pq.Array(uuidStrings(r.ItemIDs)), idemKey,
		nullUUID(r.ApprovedBy), r.ApprovedAt, nullUUID(r.AllocatedBy), r.AllocatedAt,
		nullUUID(r.IssuedBy), r.IssuedAt, r.ReturnedAt, r.CompletedAt,
		r.Version, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create request: %w", translate(err))
	}
	return nil
}

func (s *Store) FindRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	row := s.exec(ctx).QueryRowContext(ctx,
		forUpdate(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`), uuid.UUID(requestID))
	r, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("find request: %w", translate(err))
	}
	return r, nil
}

func (s *Store) FindRequestByIdempotencyKey(ctx context.Context, requester id.PrincipalID, key string) (*models.Request, error) {
	row := s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE requester_id = $1 AND idempotency_key = $2`,
		uuid.UUID(requester), key)
	r, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("find request by idempotency key: %w", translate(err))
	}
	return r, nil
}

// UpdateRequest follows the same version rule as UpdateContainer.
func (s *Store) UpdateRequest(ctx context.Context, r *models.Request) error {
	res, err := s.exec(ctx).ExecContext(ctx, `UPDATE requests
		SET status = $3, purpose = $4, expected_return_at = $5,
			approved_by = $6, approved_at = $7, allocated_by = $8, allocated_at = $9,
			issued_by = $10, issued_at = $11, returned_at = $12, completed_at = $13,
			version = version + 1, updated_at = $14
		WHERE id = $1 AND version = $2`,
		uuid.UUID(r.ID), r.Version, string(r.Status), r.Purpose, r.ExpectedReturnAt,
		nullUUID(r.ApprovedBy), r.ApprovedAt, nullUUID(r.AllocatedBy), r.AllocatedAt,
		nullUUID(r.IssuedBy), r.IssuedAt, r.ReturnedAt, r.CompletedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update request: %w", translate(err))
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update request: %w", err)
	} else if n == 0 {
		return sentinel.ErrConflict
	}
	r.Version++
	return nil
}

// QueryRequests returns matches newest first.
func (s *Store) QueryRequests(ctx context.Context, filter models.RequestFilter) ([]*models.Request, error) {
	if filter.Scope.Empty() {
		return []*models.Request{}, nil
	}
	var w where
	w.units("unit_id", filter.Scope.Unscoped, filter.Scope.Units)
	if filter.Type != "" {
		w.add("type = ?", string(filter.Type))
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.ContainerID != nil {
		w.add("container_id = ?", uuid.UUID(*filter.ContainerID))
	}
	if filter.RequesterID != nil {
		w.add("requester_id = ?", uuid.UUID(*filter.RequesterID))
	}
	if filter.UnitID != nil {
		w.add("unit_id = ?", uuid.UUID(*filter.UnitID))
	}
	query := `SELECT ` + requestColumns + ` FROM requests` + w.String() + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.exec(ctx).QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()
	out := []*models.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return out, nil
}

func (s *Store) HasOpenRequest(ctx context.Context, containerID id.ContainerID, t models.Type) (bool, error) {
	var open bool
	err := s.exec(ctx).QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM requests
		WHERE container_id = $1 AND type = $2 AND status NOT IN ('rejected', 'completed'))`,
		uuid.UUID(containerID), string(t)).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("check open requests: %w", err)
	}
	return open, nil
}

func (s *Store) AppendNotice(ctx context.Context, n *models.ChangeNotice) error {
	_, err := s.exec(ctx).ExecContext(ctx, `INSERT INTO change_notices
		(id, request_id, kind, reason, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(n.ID), uuid.UUID(n.RequestID), string(n.Kind), n.Reason, uuid.UUID(n.CreatedBy), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("append notice: %w", translate(err))
	}
	return nil
}

func (s *Store) ListNotices(ctx context.Context, requestID id.RequestID) ([]*models.ChangeNotice, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `SELECT id, request_id, kind, reason, created_by, created_at
		FROM change_notices WHERE request_id = $1 ORDER BY created_at`, uuid.UUID(requestID))
	if err != nil {
		return nil, fmt.Errorf("list notices: %w", err)
	}
	defer rows.Close()
	out := []*models.ChangeNotice{}
	for rows.Next() {
		var (
			n                   models.ChangeNotice
			nID, rID, createdBy uuid.UUID
			kind                string
		)
		if err := rows.Scan(&nID, &rID, &kind, &n.Reason, &createdBy, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		n.ID = id.NoticeID(nID)
		n.RequestID = id.RequestID(rID)
		n.Kind = models.NoticeKind(kind)
		n.CreatedBy = id.PrincipalID(createdBy)
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notices: %w", err)
	}
	return out, nil
}
