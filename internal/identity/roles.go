package identity

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	pstrings "archivist/pkg/platform/strings"
)

// Role names shipped with the default definitions.
const (
	RoleSystemAdmin = "System Admin"
	RoleSectionHead = "Section Head"
	RoleStoreHead   = "Store Head"
	RoleUser        = "User"
	RoleQA          = "QA"
)

// Roles maps a role name to the capabilities it grants.
type Roles map[string]CapabilitySet

// Capabilities returns the set for role; unknown roles grant nothing.
func (r Roles) Capabilities(role string) CapabilitySet {
	return r[role]
}

// DefaultRoles mirrors the four core roles plus a quality-assurance reviewer
// that reads across units and may invalidate signatures.
func DefaultRoles() Roles {
	return Roles{
		RoleSystemAdmin: NewCapabilitySet(
			CapCreateRequest, CapApproveRequest, CapAllocateStorage, CapConfirmDestruction,
			CapManageContainers, CapInvalidateSignature, CapViewAudit, CapUnscoped,
		),
		RoleSectionHead: NewCapabilitySet(CapCreateRequest, CapApproveRequest, CapViewAudit),
		RoleStoreHead:   NewCapabilitySet(CapCreateRequest, CapAllocateStorage, CapConfirmDestruction, CapManageContainers, CapViewAudit),
		RoleUser:        NewCapabilitySet(CapCreateRequest),
		RoleQA:          NewCapabilitySet(CapViewAudit, CapInvalidateSignature, CapUnscoped),
	}
}

type roleFile struct {
	Roles []struct {
		Name       string   `yaml:"name"`
		Privileges []string `yaml:"privileges"`
	} `yaml:"roles"`
}

// ParseRoles reads role definitions from YAML:
//
//	roles:
//	  - name: Section Head
//	    privileges: [create_request, approve_request]
func ParseRoles(r io.Reader) (Roles, error) {
	var f roleFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	roles := make(Roles, len(f.Roles))
	for _, def := range f.Roles {
		if def.Name == "" {
			return nil, fmt.Errorf("role without name")
		}
		if _, dup := roles[def.Name]; dup {
			return nil, fmt.Errorf("role %q defined twice", def.Name)
		}
		var set CapabilitySet
		for _, name := range pstrings.DedupeAndTrim(def.Privileges) {
			c, err := ParseCapability(name)
			if err != nil {
				return nil, fmt.Errorf("role %q: %w", def.Name, err)
			}
			set = set.With(c)
		}
		roles[def.Name] = set
	}
	return roles, nil
}

// LoadRoles reads definitions from path, or returns DefaultRoles when path is
// empty.
func LoadRoles(path string) (Roles, error) {
	if path == "" {
		return DefaultRoles(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roles file: %w", err)
	}
	defer f.Close()
	return ParseRoles(f)
}
