package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "archivist/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseRequestID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseRequestID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseRequestID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseRequestID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, RequestID(validUUID), id)
		assert.Equal(t, validUUID.String(), id.String())
	})
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types have identical parsing behavior.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	parsers := map[string]func(string) error{
		"principal": func(s string) error { _, err := ParsePrincipalID(s); return err },
		"unit":      func(s string) error { _, err := ParseUnitID(s); return err },
		"request":   func(s string) error { _, err := ParseRequestID(s); return err },
		"container": func(s string) error { _, err := ParseContainerID(s); return err },
		"item":      func(s string) error { _, err := ParseItemID(s); return err },
		"location":  func(s string) error { _, err := ParseLocationID(s); return err },
		"signature": func(s string) error { _, err := ParseSignatureID(s); return err },
	}

	valid := uuid.New().String()
	for name, parse := range parsers {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, parse(valid))
			for _, input := range []string{"", "invalid", uuid.Nil.String()} {
				require.Error(t, parse(input), "input %q", input)
			}
		})
	}
}

func TestNewIDsAreNotNil(t *testing.T) {
	assert.False(t, NewContainerID().IsNil())
	assert.True(t, ContainerID{}.IsNil())
	assert.NotEqual(t, NewUnitID(), NewUnitID())
}

func TestIDsEncodeAsCanonicalText(t *testing.T) {
	u := uuid.MustParse("7a1f0c8e-2b7d-4c3e-9f60-1d2e3f4a5b6c")
	b, err := json.Marshal(struct {
		ID ContainerID `json:"id"`
	}{ContainerID(u)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"7a1f0c8e-2b7d-4c3e-9f60-1d2e3f4a5b6c"}`, string(b))

	var decoded struct {
		ID ContainerID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, ContainerID(u), decoded.ID)
}
