package memory

import (
	"context"
	"slices"
	"sort"

	"archivist/internal/container"
	"archivist/internal/workflow/models"
	id "archivist/pkg/domain"
	"archivist/pkg/platform/sentinel"
)

func cloneRequest(r *models.Request) *models.Request {
	out := *r
	out.ItemIDs = slices.Clone(r.ItemIDs)
	return &out
}

func cloneContainer(c *container.Container) *container.Container {
	out := *c
	return &out
}

func (db *DB) CreateContainer(ctx context.Context, c *container.Container) error {
	record, unlock := db.write(ctx)
	defer unlock()
	if _, ok := db.containers[c.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range db.containers {
		if existing.Barcode == c.Barcode {
			return sentinel.ErrAlreadyUsed
		}
	}
	db.containers[c.ID] = cloneContainer(c)
	record(func() { delete(db.containers, c.ID) })
	return nil
}

func (db *DB) FindContainer(ctx context.Context, containerID id.ContainerID) (*container.Container, error) {
	defer db.read(ctx)()
	c, ok := db.containers[containerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneContainer(c), nil
}

// UpdateContainer stores c when its Version matches the stored one and bumps
// the version on both.
func (db *DB) UpdateContainer(ctx context.Context, c *container.Container) error {
	record, unlock := db.write(ctx)
	defer unlock()
	prev, ok := db.containers[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if prev.Version != c.Version {
		return sentinel.ErrConflict
	}
	c.Version++
	db.containers[c.ID] = cloneContainer(c)
	record(func() {
		db.containers[c.ID] = prev
		c.Version--
	})
	return nil
}

func (db *DB) AddItems(ctx context.Context, items []*container.Item) error {
	record, unlock := db.write(ctx)
	defer unlock()
	for _, it := range items {
		for _, existing := range db.items[it.ContainerID] {
			if existing.Number == it.Number {
				return sentinel.ErrAlreadyUsed
			}
		}
		containerID := it.ContainerID
		prev := db.items[containerID]
		copied := *it
		db.items[containerID] = append(slices.Clip(prev), &copied)
		record(func() { db.items[containerID] = prev })
	}
	return nil
}

func (db *DB) ListItems(ctx context.Context, containerID id.ContainerID) ([]*container.Item, error) {
	defer db.read(ctx)()
	out := make([]*container.Item, 0, len(db.items[containerID]))
	for _, it := range db.items[containerID] {
		copied := *it
		out = append(out, &copied)
	}
	return out, nil
}

// CreateRequest enforces the idempotency key and the one-open-request rule
// for withdrawals and destructions.
func (db *DB) CreateRequest(ctx context.Context, r *models.Request) error {
	record, unlock := db.write(ctx)
	defer unlock()
	if _, ok := db.requests[r.ID]; ok {
		return sentinel.ErrConflict
	}
	key := idempotencyKey{requester: r.RequesterID, key: r.IdempotencyKey}
	if r.IdempotencyKey != "" {
		if _, ok := db.idem[key]; ok {
			return sentinel.ErrAlreadyUsed
		}
	}
	if r.Type != models.TypeStorage && db.hasOpen(r.ContainerID, r.Type) {
		return sentinel.ErrInvalidState
	}

	db.requests[r.ID] = cloneRequest(r)
	db.requestSeq = append(db.requestSeq, r.ID)
	if r.IdempotencyKey != "" {
		db.idem[key] = r.ID
	}
	record(func() {
		delete(db.requests, r.ID)
		db.requestSeq = db.requestSeq[:len(db.requestSeq)-1]
		if r.IdempotencyKey != "" {
			delete(db.idem, key)
		}
	})
	return nil
}

func (db *DB) FindRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	defer db.read(ctx)()
	r, ok := db.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRequest(r), nil
}

func (db *DB) FindRequestByIdempotencyKey(ctx context.Context, requester id.PrincipalID, key string) (*models.Request, error) {
	defer db.read(ctx)()
	requestID, ok := db.idem[idempotencyKey{requester: requester, key: key}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRequest(db.requests[requestID]), nil
}

// UpdateRequest follows the same version rule as UpdateContainer.
func (db *DB) UpdateRequest(ctx context.Context, r *models.Request) error {
	record, unlock := db.write(ctx)
	defer unlock()
	prev, ok := db.requests[r.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if prev.Version != r.Version {
		return sentinel.ErrConflict
	}
	r.Version++
	db.requests[r.ID] = cloneRequest(r)
	record(func() {
		db.requests[r.ID] = prev
		r.Version--
	})
	return nil
}

// QueryRequests returns matches newest first.
func (db *DB) QueryRequests(ctx context.Context, filter models.RequestFilter) ([]*models.Request, error) {
	defer db.read(ctx)()
	var out []*models.Request
	for i := len(db.requestSeq) - 1; i >= 0; i-- {
		r := db.requests[db.requestSeq[i]]
		if !filter.Matches(r) {
			continue
		}
		out = append(out, cloneRequest(r))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (db *DB) HasOpenRequest(ctx context.Context, containerID id.ContainerID, t models.Type) (bool, error) {
	defer db.read(ctx)()
	return db.hasOpen(containerID, t), nil
}

func (db *DB) hasOpen(containerID id.ContainerID, t models.Type) bool {
	for _, r := range db.requests {
		if r.ContainerID == containerID && r.Type == t && r.IsOpen() {
			return true
		}
	}
	return false
}

func (db *DB) AppendNotice(ctx context.Context, n *models.ChangeNotice) error {
	record, unlock := db.write(ctx)
	defer unlock()
	prev := db.notices[n.RequestID]
	copied := *n
	db.notices[n.RequestID] = append(slices.Clip(prev), &copied)
	record(func() { db.notices[n.RequestID] = prev })
	return nil
}

func (db *DB) ListNotices(ctx context.Context, requestID id.RequestID) ([]*models.ChangeNotice, error) {
	defer db.read(ctx)()
	out := make([]*models.ChangeNotice, 0, len(db.notices[requestID]))
	for _, n := range db.notices[requestID] {
		copied := *n
		out = append(out, &copied)
	}
	return out, nil
}
