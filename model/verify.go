package model

import "fmt"

// VerificationResult reports the outcome of walking a tenant's hash chain.
type VerificationResult struct {
	TenantID        string `json:"tenant_id"`
	IsValid         bool   `json:"is_valid"`
	BrokenAt        *int64 `json:"broken_at,omitempty"`
	Reason          string `json:"reason,omitempty"`
	TotalEntries    int    `json:"total_entries"`
	VerifiedEntries int    `json:"verified_entries"`
}

// VerifyChain walks entries in insertion order. At each step the stored previous hash
// must equal the prior entry's hash and the stored hash must equal the hash recomputed
// from the attested fields. It stops at the first failure; it never repairs.
func VerifyChain(entries []Entry) VerificationResult {
	result := VerificationResult{TotalEntries: len(entries)}
	if len(entries) > 0 {
		result.TenantID = entries[0].TenantID
	}

	expectedPreviousHash := GenesisHash
	for i := range entries {
		entry := &entries[i]

		if entry.PreviousHash != expectedPreviousHash {
			return result.broken(entry, fmt.Sprintf("previous hash %q does not match hash of preceding entry %q", entry.PreviousHash, expectedPreviousHash))
		}

		recomputed, err := entry.ComputeHash()
		if err != nil {
			return result.broken(entry, err.Error())
		}
		if recomputed != entry.Hash {
			return result.broken(entry, "stored hash does not match entry content")
		}

		expectedPreviousHash = entry.Hash
		result.VerifiedEntries++
	}

	result.IsValid = true
	return result
}

func (r VerificationResult) broken(entry *Entry, reason string) VerificationResult {
	n := entry.DocumentNumber
	r.IsValid = false
	r.BrokenAt = &n
	r.Reason = reason
	return r
}
