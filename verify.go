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

	"github.com/blnkfinance/cashbook/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// VerifyChain walks every entry of the tenant in insertion order and reports the first entry
// whose link or hash does not hold. A break is a finding, not an error; writes are not blocked.
func (c *Cashbook) VerifyChain(ctx context.Context, tenantID string) (*model.VerificationResult, error) {
	ctx, span := tracer.Start(ctx, "VerifyChain")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID))

	entries, err := c.datasource.GetEntriesForChain(ctx, tenantID)
	if err != nil {
		return nil, logAndRecordError(span, "failed to load chain: ", err)
	}

	result := model.VerifyChain(entries)
	result.TenantID = tenantID
	span.SetAttributes(attribute.Bool("chain.valid", result.IsValid), attribute.Int("chain.verified", result.VerifiedEntries))

	if !result.IsValid {
		logrus.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"broken_at": *result.BrokenAt,
			"reason":    result.Reason,
		}).Warn("cashbook hash chain is broken")
		c.emit(EventChainBroken, result)
	}
	return &result, nil
}
