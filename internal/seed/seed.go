// Package seed provisions the directory (units, storage locations and
// principals) from a YAML fixture. Applying the same file twice is a no-op
// for units and locations; principals are overwritten so a fixture can rotate
// passwords and role assignments.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"archivist/internal/container"
	"archivist/internal/identity"
	id "archivist/pkg/domain"
)

// namespace derives stable IDs for fixture rows that omit one.
var namespace = uuid.MustParse("6f1c8a52-3d4e-4b7a-9c1f-2a8e5d0b7c34")

// Directory is the store surface the fixture writes to.
type Directory interface {
	UpsertUnit(ctx context.Context, u identity.Unit) error
	UpsertLocation(ctx context.Context, l container.Location) error
	UpsertPrincipal(ctx context.Context, p identity.Principal) error
}

// PasswordHasher turns a fixture password into the stored hash.
type PasswordHasher func(password string) (string, error)

// File is the fixture document:
//
//	units:
//	  - code: U1
//	    name: Records
//	locations:
//	  - unit: U1
//	    room: R1
//	    rack: "1"
//	    compartment: A
//	principals:
//	  - username: ayla
//	    display_name: Ayla Demir
//	    role: User
//	    units: [U1]
//	    password: change-me
type File struct {
	Units      []Unit      `yaml:"units"`
	Locations  []Location  `yaml:"locations"`
	Principals []Principal `yaml:"principals"`
}

type Unit struct {
	ID   string `yaml:"id"`
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type Location struct {
	ID          string `yaml:"id"`
	Unit        string `yaml:"unit"`
	Room        string `yaml:"room"`
	Rack        string `yaml:"rack"`
	Compartment string `yaml:"compartment"`
	Shelf       string `yaml:"shelf"`
}

type Principal struct {
	ID          string   `yaml:"id"`
	Username    string   `yaml:"username"`
	DisplayName string   `yaml:"display_name"`
	Email       string   `yaml:"email"`
	Role        string   `yaml:"role"`
	Units       []string `yaml:"units"`
	Status      string   `yaml:"status"`
	Password    string   `yaml:"password"`
}

// Parse decodes a fixture.
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return &f, nil
}

// Load reads a fixture from path.
func Load(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// Summary counts what Apply wrote.
type Summary struct {
	Units      int
	Locations  int
	Principals int
}

// Apply validates the whole fixture before writing anything, then upserts
// units, locations and principals in that order.
func Apply(ctx context.Context, dir Directory, f *File, hash PasswordHasher, roles identity.Roles) (Summary, error) {
	units, err := f.units()
	if err != nil {
		return Summary{}, err
	}
	byCode := make(map[string]identity.Unit, len(units))
	for _, u := range units {
		byCode[u.Code] = u
	}
	locations, err := f.locations(byCode)
	if err != nil {
		return Summary{}, err
	}
	principals, err := f.principals(byCode, hash, roles)
	if err != nil {
		return Summary{}, err
	}

	for _, u := range units {
		if err := dir.UpsertUnit(ctx, u); err != nil {
			return Summary{}, fmt.Errorf("seed unit %s: %w", u.Code, err)
		}
	}
	for _, l := range locations {
		if err := dir.UpsertLocation(ctx, l); err != nil {
			return Summary{}, fmt.Errorf("seed location %s: %w", l.FullLocation(), err)
		}
	}
	for _, p := range principals {
		if err := dir.UpsertPrincipal(ctx, p); err != nil {
			return Summary{}, fmt.Errorf("seed principal %s: %w", p.Username, err)
		}
	}
	return Summary{Units: len(units), Locations: len(locations), Principals: len(principals)}, nil
}

func (f *File) units() ([]identity.Unit, error) {
	out := make([]identity.Unit, 0, len(f.Units))
	seen := make(map[string]struct{}, len(f.Units))
	for i, u := range f.Units {
		code := strings.TrimSpace(u.Code)
		if code == "" {
			return nil, fmt.Errorf("unit %d: code is required", i)
		}
		if _, dup := seen[code]; dup {
			return nil, fmt.Errorf("unit %s defined twice", code)
		}
		seen[code] = struct{}{}
		raw, err := stableID(u.ID, "unit", code)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", code, err)
		}
		name := strings.TrimSpace(u.Name)
		if name == "" {
			name = code
		}
		out = append(out, identity.Unit{ID: id.UnitID(raw), Code: code, Name: name})
	}
	return out, nil
}

func (f *File) locations(units map[string]identity.Unit) ([]container.Location, error) {
	out := make([]container.Location, 0, len(f.Locations))
	for i, l := range f.Locations {
		unit, ok := units[strings.TrimSpace(l.Unit)]
		if !ok {
			return nil, fmt.Errorf("location %d: unknown unit %q", i, l.Unit)
		}
		if l.Room == "" || l.Rack == "" || l.Compartment == "" {
			return nil, fmt.Errorf("location %d: room, rack and compartment are required", i)
		}
		loc := container.Location{
			UnitID:      unit.ID,
			UnitCode:    unit.Code,
			Room:        l.Room,
			Rack:        l.Rack,
			Compartment: l.Compartment,
			Shelf:       l.Shelf,
		}
		raw, err := stableID(l.ID, "location", loc.FullLocation())
		if err != nil {
			return nil, fmt.Errorf("location %s: %w", loc.FullLocation(), err)
		}
		loc.ID = id.LocationID(raw)
		out = append(out, loc)
	}
	return out, nil
}

func (f *File) principals(units map[string]identity.Unit, hash PasswordHasher, roles identity.Roles) ([]identity.Principal, error) {
	out := make([]identity.Principal, 0, len(f.Principals))
	seen := make(map[string]struct{}, len(f.Principals))
	for i, p := range f.Principals {
		username := strings.TrimSpace(p.Username)
		if username == "" {
			return nil, fmt.Errorf("principal %d: username is required", i)
		}
		if _, dup := seen[username]; dup {
			return nil, fmt.Errorf("principal %s defined twice", username)
		}
		seen[username] = struct{}{}
		if _, known := roles[p.Role]; !known {
			return nil, fmt.Errorf("principal %s: unknown role %q", username, p.Role)
		}
		if p.Password == "" {
			return nil, fmt.Errorf("principal %s: password is required", username)
		}
		status := identity.Status(p.Status)
		if status == "" {
			status = identity.StatusActive
		}
		switch status {
		case identity.StatusActive, identity.StatusInactive, identity.StatusSuspended, identity.StatusLocked:
		default:
			return nil, fmt.Errorf("principal %s: unknown status %q", username, p.Status)
		}
		assigned := make([]id.UnitID, 0, len(p.Units))
		for _, code := range p.Units {
			u, ok := units[strings.TrimSpace(code)]
			if !ok {
				return nil, fmt.Errorf("principal %s: unknown unit %q", username, code)
			}
			assigned = append(assigned, u.ID)
		}
		raw, err := stableID(p.ID, "principal", username)
		if err != nil {
			return nil, fmt.Errorf("principal %s: %w", username, err)
		}
		hashed, err := hash(p.Password)
		if err != nil {
			return nil, fmt.Errorf("principal %s: %w", username, err)
		}
		displayName := p.DisplayName
		if displayName == "" {
			displayName = username
		}
		out = append(out, identity.Principal{
			ID:           id.PrincipalID(raw),
			Username:     username,
			DisplayName:  displayName,
			Email:        p.Email,
			Role:         p.Role,
			Units:        assigned,
			Status:       status,
			PasswordHash: hashed,
		})
	}
	return out, nil
}

// stableID parses explicit, or derives a name-based UUID so the same fixture
// row keeps its identity across restarts.
func stableID(explicit, kind, key string) (uuid.UUID, error) {
	if explicit != "" {
		u, err := uuid.Parse(explicit)
		if err != nil || u == uuid.Nil {
			return uuid.Nil, fmt.Errorf("invalid id %q", explicit)
		}
		return u, nil
	}
	return uuid.NewSHA1(namespace, []byte(kind+":"+key)), nil
}
