package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/signature"
	"archivist/internal/storage/memory"
	id "archivist/pkg/domain"
)

func sealed(t *testing.T, snapshot string) *signature.Signature {
	t.Helper()
	s := &signature.Signature{
		ID:                id.NewSignatureID(),
		SignerID:          id.NewPrincipalID(),
		SignerUsername:    "archivist.one",
		SignerDisplayName: "Archivist One",
		SignerRole:        "archivist",
		ActionType:        signature.ActionApprove,
		Purpose:           "approve storage request",
		Timestamp:         time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		TargetEntityType:  id.EntityRequest,
		TargetEntityID:    uuid.New(),
		UnitID:            id.NewUnitID(),
		Snapshot:          json.RawMessage(snapshot),
		AuthMethod:        "password",
		IsValid:           true,
	}
	require.NoError(t, signature.Seal(s))
	return s
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	db := memory.New()

	good := sealed(t, `{"status":"approved"}`)
	require.NoError(t, db.AppendSignature(ctx, good))

	tampered := sealed(t, `{"status":"approved"}`)
	tampered.Snapshot = json.RawMessage(`{"status":"rejected"}`)
	require.NoError(t, db.AppendSignature(ctx, tampered))

	revoked := sealed(t, `{"status":"issued"}`)
	require.NoError(t, db.AppendSignature(ctx, revoked))
	require.NoError(t, db.InvalidateSignature(ctx, revoked.ID, signature.Invalidation{
		Reason: "signed on the wrong request",
		By:     id.NewPrincipalID(),
		At:     time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC),
	}))

	report, err := sweep(ctx, db)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 1, report.Valid)
	assert.Equal(t, 1, report.Tampered)
	assert.Equal(t, 1, report.Invalidated)
	require.Len(t, report.Findings, 2)

	byID := map[id.SignatureID]Finding{}
	for _, f := range report.Findings {
		byID[f.SignatureID] = f
	}
	assert.True(t, byID[tampered.ID].Tampered)
	assert.Contains(t, byID[tampered.ID].Reason, "data hash mismatch")
	assert.False(t, byID[revoked.ID].Tampered)
	assert.Equal(t, "invalidated: signed on the wrong request", byID[revoked.ID].Reason)
}

func TestSweepEmptyStore(t *testing.T) {
	report, err := sweep(context.Background(), memory.New())
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	assert.Empty(t, report.Findings)
}

func TestWriteReport(t *testing.T) {
	report := &Report{
		Checked:  2,
		Valid:    1,
		Tampered: 1,
		Findings: []Finding{{
			SignatureID:      id.NewSignatureID(),
			TargetEntityType: id.EntityContainer,
			TargetEntityID:   uuid.New(),
			SignerUsername:   "clerk",
			Tampered:         true,
			Reason:           "signature hash mismatch: signed fields were modified",
		}},
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeReport(&buf, report, "text"))
		assert.Contains(t, buf.String(), "TAMPERED")
		assert.Contains(t, buf.String(), "clerk")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeReport(&buf, report, "json"))
		var decoded Report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, 1, decoded.Tampered)
		require.Len(t, decoded.Findings, 1)
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, writeReport(&bytes.Buffer{}, report, "xml"))
	})
}
