package domain

// EntityType names the kind of record a signature or audit entry points at.
type EntityType string

const (
	EntityRequest   EntityType = "request"
	EntityContainer EntityType = "container"
	EntitySignature EntityType = "signature"
)

func (t EntityType) IsValid() bool {
	switch t {
	case EntityRequest, EntityContainer, EntitySignature:
		return true
	}
	return false
}
