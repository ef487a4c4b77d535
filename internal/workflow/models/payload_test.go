package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/container"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
)

func TestDecodePayload(t *testing.T) {
	t.Run("resolves the variant by discriminator", func(t *testing.T) {
		p, err := DecodePayload(json.RawMessage(`{"type":"reason","reason":"missing inventory list"}`))
		require.NoError(t, err)
		rp, ok := p.(ReasonPayload)
		require.True(t, ok)
		assert.Equal(t, "missing inventory list", rp.Reason)
	})

	t.Run("empty body is the none variant", func(t *testing.T) {
		p, err := DecodePayload(nil)
		require.NoError(t, err)
		assert.Equal(t, PayloadNone, p.Kind())
	})

	t.Run("missing discriminator is rejected, not inferred", func(t *testing.T) {
		_, err := DecodePayload(json.RawMessage(`{"reason":"missing inventory list"}`))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unknown discriminator is rejected", func(t *testing.T) {
		_, err := DecodePayload(json.RawMessage(`{"type":"teleport"}`))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("malformed variant body is a bad request", func(t *testing.T) {
		_, err := DecodePayload(json.RawMessage(`{"type":"location","location_id":42}`))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestTransitionPayloadKind(t *testing.T) {
	assert.Equal(t, PayloadLocation, TransitionPayloadKind(ActionAllocate, TypeStorage))
	assert.Equal(t, PayloadNone, TransitionPayloadKind(ActionAllocate, TypeWithdrawal))
	assert.Equal(t, PayloadReason, TransitionPayloadKind(ActionSendBack, TypeDestruction))
	assert.Equal(t, PayloadReturn, TransitionPayloadKind(ActionReturn, TypeWithdrawal))
	assert.Equal(t, PayloadNone, TransitionPayloadKind(ActionApprove, TypeStorage))
}

func TestStoragePayloadValidate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.AddDate(5, 0, 0)
	past := now.AddDate(-1, 0, 0)
	base := func() StoragePayload {
		return StoragePayload{
			UnitID:          id.NewUnitID(),
			DestructionDate: &future,
			Items:           []ItemInput{{Number: "D-1", Name: "Batch record"}, {Number: "D-2", Name: "Deviation"}},
		}
	}

	assert.NoError(t, base().Validate(now))

	p := base()
	p.Items = append(p.Items, ItemInput{Number: " D-1 ", Name: "dup"})
	assert.True(t, dErrors.HasCode(p.Validate(now), dErrors.CodeValidation))

	p = base()
	p.DestructionDate = &past
	assert.True(t, dErrors.HasCode(p.Validate(now), dErrors.CodeValidation))

	p = base()
	p.DestructionDate = nil
	assert.True(t, dErrors.HasCode(p.Validate(now), dErrors.CodeValidation))
	p.Retained = true
	assert.NoError(t, p.Validate(now))

	p = base()
	p.Items = nil
	assert.True(t, dErrors.HasCode(p.Validate(now), dErrors.CodeValidation))
}

func TestWithdrawalPayloadValidate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	partial := false
	p := WithdrawalPayload{ContainerID: id.NewContainerID(), ExpectedReturnAt: now.Add(48 * time.Hour)}
	assert.NoError(t, p.Validate(now))
	assert.True(t, p.IsFull())

	p.FullWithdrawal = &partial
	assert.True(t, dErrors.HasCode(p.Validate(now), dErrors.CodeValidation))
	p.ItemIDs = []id.ItemID{id.NewItemID()}
	assert.NoError(t, p.Validate(now))

	p.ExpectedReturnAt = now.Add(-time.Hour)
	assert.True(t, dErrors.HasCode(p.Validate(now), dErrors.CodeValidation))
}

func TestReasonPayloadValidate(t *testing.T) {
	assert.Error(t, ReasonPayload{Reason: "   short    "}.Validate(10))
	assert.NoError(t, ReasonPayload{Reason: "labels are illegible"}.Validate(10))
}

func TestResubmitPayloadValidate(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)
	p := ResubmitPayload{ExpectedReturnAt: &later}
	assert.NoError(t, p.Validate(TypeWithdrawal, now))
	assert.Error(t, p.Validate(TypeStorage, now))

	retained := true
	storage := ResubmitPayload{DestructionDate: &later, Retained: &retained}
	assert.NoError(t, storage.Validate(TypeStorage, now))
	assert.True(t, dErrors.HasCode(storage.Validate(TypeWithdrawal, now), dErrors.CodeValidation))

	earlier := now.Add(-time.Hour)
	assert.Error(t, ResubmitPayload{DestructionDate: &earlier}.Validate(TypeStorage, now))
}

func TestResubmitRetention(t *testing.T) {
	now := time.Now()
	planned := now.AddDate(3, 0, 0)
	moved := now.AddDate(5, 0, 0)
	c, err := container.New(id.NewContainerID(), id.NewUnitID(), "U1/2026/00001", &planned, false, id.NewPrincipalID(), now)
	require.NoError(t, err)

	assert.False(t, ResubmitPayload{}.ChangesRetention())

	retained, date := ResubmitPayload{DestructionDate: &moved}.Retention(c)
	assert.False(t, retained)
	assert.Equal(t, &moved, date)

	keep := true
	retained, date = ResubmitPayload{Retained: &keep}.Retention(c)
	assert.True(t, retained)
	assert.Nil(t, date)

	release := false
	retained, date = ResubmitPayload{Retained: &release}.Retention(c)
	assert.False(t, retained)
	assert.Equal(t, c.DestructionDate, date)
}
