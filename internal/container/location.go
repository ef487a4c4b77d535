package container

import (
	"fmt"

	id "archivist/pkg/domain"
)

// Location is a storage slot inside a unit's store room.
type Location struct {
	ID          id.LocationID `json:"id"`
	UnitID      id.UnitID     `json:"unit_id"`
	UnitCode    string        `json:"unit_code"`
	Room        string        `json:"room"`
	Rack        string        `json:"rack"`
	Compartment string        `json:"compartment"`
	Shelf       string        `json:"shelf,omitempty"`
}

// FullLocation renders the compact path, e.g. "U3-R1-1A1"
// (unit-room-rack+compartment+shelf).
func (l *Location) FullLocation() string {
	return fmt.Sprintf("%s-%s-%s%s%s", l.UnitCode, l.Room, l.Rack, l.Compartment, l.Shelf)
}

// Barcode formats a container barcode: UNIT/YEAR/NNNNN.
func Barcode(unitCode string, year, sequence int) string {
	return fmt.Sprintf("%s/%d/%05d", unitCode, year, sequence)
}
