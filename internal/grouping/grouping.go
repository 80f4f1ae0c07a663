// Package grouping collapses a batch of failure records into unique groups
// keyed by a content-derived signature, so the analysis step runs once per
// distinct error instead of once per failing test.
package grouping

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"build-insight/internal/models"
)

// signatureStackLines is how many leading stack trace lines feed the signature.
// Deeper frames tend to differ across tests hitting the same root cause.
const signatureStackLines = 5

// FailureGroup is one signature plus the ordered records sharing it. The
// first member is the representative sent to analysis.
type FailureGroup struct {
	Signature string
	Records   []models.FailureRecord
}

// Signature computes the grouping key for a failure record: a SHA-256 hex
// digest over the error message joined with the first few stack trace lines.
// The hash is over the literal text; failures differing only in volatile
// detail (line numbers, request ids) produce distinct signatures.
func Signature(rec models.FailureRecord) string {
	lines := strings.Split(rec.StackTrace, "\n")
	if len(lines) > signatureStackLines {
		lines = lines[:signatureStackLines]
	}
	text := rec.ErrorMessage + "|" + strings.Join(lines, "|")
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Group partitions records into failure groups in first-seen signature
// order. Every input record lands in exactly one group; an empty input
// yields an empty output.
func Group(records []models.FailureRecord) []FailureGroup {
	var groups []FailureGroup
	index := make(map[string]int, len(records))

	for _, rec := range records {
		sig := Signature(rec)
		if i, ok := index[sig]; ok {
			groups[i].Records = append(groups[i].Records, rec)
			continue
		}
		index[sig] = len(groups)
		groups = append(groups, FailureGroup{Signature: sig, Records: []models.FailureRecord{rec}})
	}

	return groups
}
