package identity

import (
	"fmt"
	"math/bits"
	"strings"
)

// Capability is one granted permission. A principal's capabilities form a
// bitset computed from its role on every call; nothing is cached.
type Capability uint32

const (
	CapCreateRequest Capability = 1 << iota
	CapApproveRequest
	CapAllocateStorage
	CapConfirmDestruction
	CapManageContainers
	CapInvalidateSignature
	CapViewAudit
	// CapUnscoped lifts unit isolation for reads and writes.
	CapUnscoped
)

var capabilityNames = map[Capability]string{
	CapCreateRequest:       "create_request",
	CapApproveRequest:      "approve_request",
	CapAllocateStorage:     "allocate_storage",
	CapConfirmDestruction:  "confirm_destruction",
	CapManageContainers:    "manage_master_data",
	CapInvalidateSignature: "invalidate_signature",
	CapViewAudit:           "view_audit_trails",
	CapUnscoped:            "unscoped_access",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", uint32(c))
}

// ParseCapability maps a privilege codename to its capability.
func ParseCapability(name string) (Capability, error) {
	name = strings.TrimSpace(name)
	for c, n := range capabilityNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}

// CapabilitySet is a bitset of capabilities.
type CapabilitySet uint32

// NewCapabilitySet builds a set from individual capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= CapabilitySet(c)
	}
	return s
}

func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

func (s CapabilitySet) With(c Capability) CapabilitySet {
	return s | CapabilitySet(c)
}

func (s CapabilitySet) Len() int {
	return bits.OnesCount32(uint32(s))
}

// Names lists the codenames in the set, lowest bit first.
func (s CapabilitySet) Names() []string {
	names := make([]string, 0, s.Len())
	for c := CapCreateRequest; c <= CapUnscoped; c <<= 1 {
		if s.Has(c) {
			names = append(names, c.String())
		}
	}
	return names
}
