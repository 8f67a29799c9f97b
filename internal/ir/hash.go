package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with old hashes.
const (
	DomainWorkbook = "gridcalc/workbook/v1"
	DomainState    = "gridcalc/state/v1"
)

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// WorkbookHash identifies a workbook description by content. Snapshots are
// stored against it so state saved for one description is never silently
// applied to an edited one.
func WorkbookHash(wb *Workbook) (string, error) {
	canonical, err := MarshalCanonical(wb)
	if err != nil {
		return "", fmt.Errorf("workbook hash: %w", err)
	}
	return hashWithDomain(DomainWorkbook, canonical), nil
}

// StateHash identifies a set of saved root-cell values by content.
func StateHash(values map[string]any) (string, error) {
	if values == nil {
		values = map[string]any{}
	}
	canonical, err := MarshalCanonical(values)
	if err != nil {
		return "", fmt.Errorf("state hash: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}
