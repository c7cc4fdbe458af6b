/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cashbook

import (
	"context"
	"sort"
	"strings"

	"github.com/blnkfinance/cashbook/model"
	"github.com/sirupsen/logrus"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// containmentSimilarity is the score of a description that contains the other.
	containmentSimilarity = 0.85

	similarThreshold     = 0.8
	verySimilarThreshold = 0.9
)

var levenshteinOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// duplicateRule is one classification of a candidate, evaluated in priority order.
type duplicateRule struct {
	reason  string
	matches func(amount, date, docType bool, similarity float64) bool
}

var duplicateRules = []duplicateRule{
	{
		reason: model.MatchReasonSimilar,
		matches: func(amount, date, docType bool, similarity float64) bool {
			return amount && date && docType && similarity > similarThreshold
		},
	},
	{
		reason: model.MatchReasonIdentical,
		matches: func(amount, date, docType bool, _ float64) bool {
			return amount && date && docType
		},
	},
	{
		reason: model.MatchReasonVerySimilar,
		matches: func(amount, date, _ bool, similarity float64) bool {
			return amount && date && similarity > verySimilarThreshold
		},
	},
}

func normalizeDescription(s string) []rune {
	return []rune(strings.ToLower(strings.TrimSpace(s)))
}

// DescriptionSimilarity scores two descriptions in [0, 1]: 1 for identical text, 0.85 when one
// contains the other, otherwise 1 - levenshtein distance / length of the longer one.
func DescriptionSimilarity(a, b string) float64 {
	ra, rb := normalizeDescription(a), normalizeDescription(b)
	sa, sb := string(ra), string(rb)
	switch {
	case sa == sb:
		return 1
	case len(ra) == 0 || len(rb) == 0:
		return 0
	case strings.Contains(sa, sb) || strings.Contains(sb, sa):
		return containmentSimilarity
	}

	distance := levenshtein.DistanceForStrings(ra, rb, levenshteinOptions)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1 - float64(distance)/float64(longest)
}

// detectDuplicate classifies candidates against check. Rules are tried in priority order over
// all candidates; within a rule the most recent candidate (highest document number) wins.
func detectDuplicate(check model.DuplicateCheck, candidates []model.Entry) model.DuplicateCheckResult {
	sorted := make([]model.Entry, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DocumentNumber > sorted[j].DocumentNumber
	})

	entryDate := calendarDate(check.EntryDate)
	amount := check.Amount.Abs()

	type scored struct {
		entry                 *model.Entry
		amount, date, docType bool
		similarity            float64
	}
	scores := make([]scored, 0, len(sorted))
	for i := range sorted {
		candidate := &sorted[i]
		if candidate.IsCancelled {
			continue
		}
		scores = append(scores, scored{
			entry:      candidate,
			amount:     candidate.Amount.Abs().Equal(amount),
			date:       candidate.EntryDate.Equal(entryDate),
			docType:    candidate.DocumentType == check.DocumentType,
			similarity: DescriptionSimilarity(check.Description, candidate.Description),
		})
	}

	for _, rule := range duplicateRules {
		for _, s := range scores {
			if rule.matches(s.amount, s.date, s.docType, s.similarity) {
				match := *s.entry
				return model.DuplicateCheckResult{
					IsDuplicate:   true,
					MatchingEntry: &match,
					MatchReason:   rule.reason,
					Similarity:    s.similarity,
				}
			}
		}
	}
	return model.DuplicateCheckResult{IsDuplicate: false}
}

// CheckForDuplicates scans the tenant's non-cancelled entries dated within one day of the
// prospective entry. The check is advisory: when the store cannot be read it reports no duplicate.
func (c *Cashbook) CheckForDuplicates(ctx context.Context, check model.DuplicateCheck) model.DuplicateCheckResult {
	ctx, span := tracer.Start(ctx, "CheckForDuplicates")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", check.TenantID))

	date := calendarDate(check.EntryDate)
	candidates, err := c.datasource.GetEntriesInDateRange(ctx, check.TenantID, date.AddDate(0, 0, -1), date.AddDate(0, 0, 1))
	if err != nil {
		span.RecordError(err)
		logrus.WithField("tenant_id", check.TenantID).Warn("duplicate check skipped: ", err)
		return model.DuplicateCheckResult{IsDuplicate: false}
	}

	result := detectDuplicate(check, candidates)
	span.SetAttributes(attribute.Bool("duplicate.found", result.IsDuplicate))
	return result
}
