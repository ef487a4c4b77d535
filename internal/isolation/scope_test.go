package isolation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"archivist/internal/identity"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
)

type row struct {
	name string
	unit id.UnitID
}

func TestScope(t *testing.T) {
	unitU := id.NewUnitID()
	unitV := id.NewUnitID()
	rows := []row{{"a", unitU}, {"b", unitV}, {"c", unitU}}
	unitOf := func(r row) id.UnitID { return r.unit }

	t.Run("scoped caller sees only its units", func(t *testing.T) {
		scope := For(&identity.Caller{Principal: &identity.Principal{Units: []id.UnitID{unitU}}})

		assert.True(t, scope.Allows(unitU))
		assert.False(t, scope.Allows(unitV))
		assert.Equal(t, []row{{"a", unitU}, {"c", unitU}}, Filter(scope, rows, unitOf))
		assert.True(t, dErrors.HasCode(RequireUnit(scope, unitV), dErrors.CodeForbidden))
	})

	t.Run("unscoped capability lifts the filter", func(t *testing.T) {
		scope := For(&identity.Caller{
			Principal:    &identity.Principal{Units: []id.UnitID{unitU}},
			Capabilities: identity.NewCapabilitySet(identity.CapUnscoped),
		})

		assert.True(t, scope.Allows(unitV))
		assert.Len(t, Filter(scope, rows, unitOf), 3)
		assert.NoError(t, RequireUnit(scope, unitV))
	})

	t.Run("no units and no elevation is empty, not an error", func(t *testing.T) {
		scope := For(&identity.Caller{Principal: &identity.Principal{}})

		assert.True(t, scope.Empty())
		assert.Empty(t, Filter(scope, rows, unitOf))
	})
}
