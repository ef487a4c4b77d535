package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"archivist/internal/signature"
	id "archivist/pkg/domain"
)

type signatureWalker interface {
	EachSignature(ctx context.Context, fn func(*signature.Signature) error) error
}

// Finding is one signature that failed verification.
type Finding struct {
	SignatureID      id.SignatureID `json:"signature_id"`
	TargetEntityType id.EntityType  `json:"target_entity_type"`
	TargetEntityID   uuid.UUID      `json:"target_entity_id"`
	SignerUsername   string         `json:"signer_username"`
	SignedAt         time.Time      `json:"signed_at"`
	Tampered         bool           `json:"tampered"`
	Reason           string         `json:"reason"`
}

// Report summarises a sweep. Invalidated signatures are listed but only
// tampered ones count as integrity failures.
type Report struct {
	Checked     int       `json:"checked"`
	Valid       int       `json:"valid"`
	Invalidated int       `json:"invalidated"`
	Tampered    int       `json:"tampered"`
	Findings    []Finding `json:"findings"`
}

func sweep(ctx context.Context, store signatureWalker) (*Report, error) {
	report := &Report{Findings: []Finding{}}
	err := store.EachSignature(ctx, func(s *signature.Signature) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Checked++
		ok, reason := signature.VerifyIntegrity(s)
		if ok {
			report.Valid++
			return nil
		}
		tampered := s.IsValid || !invalidatedOnly(s)
		if tampered {
			report.Tampered++
		} else {
			report.Invalidated++
		}
		report.Findings = append(report.Findings, Finding{
			SignatureID:      s.ID,
			TargetEntityType: s.TargetEntityType,
			TargetEntityID:   s.TargetEntityID,
			SignerUsername:   s.SignerUsername,
			SignedAt:         s.Timestamp,
			Tampered:         tampered,
			Reason:           reason,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sweep signatures: %w", err)
	}
	return report, nil
}

// invalidatedOnly reports whether an invalidated signature still has intact
// hashes.
func invalidatedOnly(s *signature.Signature) bool {
	intact := *s
	intact.IsValid = true
	ok, _ := signature.VerifyIntegrity(&intact)
	return ok
}

func writeReport(w io.Writer, report *Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "text":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "checked\t%d\nvalid\t%d\ninvalidated\t%d\ntampered\t%d\n",
			report.Checked, report.Valid, report.Invalidated, report.Tampered)
		if len(report.Findings) > 0 {
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "SIGNATURE\tTARGET\tSIGNER\tSTATE\tREASON")
			for _, f := range report.Findings {
				state := "invalidated"
				if f.Tampered {
					state = "TAMPERED"
				}
				fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%s\n",
					f.SignatureID, f.TargetEntityType, f.TargetEntityID, f.SignerUsername, state, f.Reason)
			}
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
