package container

import (
	"strings"
	"time"

	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
)

// ItemKind distinguishes paper records from digital media.
type ItemKind string

const (
	ItemPhysical ItemKind = "physical"
	ItemDigital  ItemKind = "digital"
)

func (k ItemKind) IsValid() bool {
	return k == ItemPhysical || k == ItemDigital
}

// Item is one record held by exactly one container. Identity fields never
// change after creation.
type Item struct {
	ID          id.ItemID      `json:"id"`
	ContainerID id.ContainerID `json:"container_id"`
	Number      string         `json:"number"`
	Name        string         `json:"name"`
	Kind        ItemKind       `json:"kind"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewItem validates and builds an item.
func NewItem(itemID id.ItemID, containerID id.ContainerID, number, name string, kind ItemKind, description string, now time.Time) (*Item, error) {
	number = strings.TrimSpace(number)
	name = strings.TrimSpace(name)
	if number == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "item number is required")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "item name is required")
	}
	if kind == "" {
		kind = ItemPhysical
	}
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "item kind must be physical or digital")
	}
	return &Item{
		ID:          itemID,
		ContainerID: containerID,
		Number:      number,
		Name:        name,
		Kind:        kind,
		Description: description,
		CreatedAt:   now,
	}, nil
}
