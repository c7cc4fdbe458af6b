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

package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blnkfinance/cashbook/model"
	"github.com/gin-gonic/gin"
	"github.com/wacul/ptr"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ParseEntryFilter reads the entry filter from query parameters:
// from, to (YYYY-MM-DD), document_type, include_cancelled, search, receipt_id, limit, offset.
// When paginate is set the limit defaults to 50 and is capped at 500.
func ParseEntryFilter(c *gin.Context, paginate bool) (model.EntryFilter, error) {
	filter := model.EntryFilter{
		DocumentType:     model.DocumentType(c.Query("document_type")),
		IncludeCancelled: c.DefaultQuery("include_cancelled", "") == "true",
		Search:           strings.TrimSpace(c.Query("search")),
		ReceiptID:        c.Query("receipt_id"),
	}

	for name, target := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		date, err := time.Parse(model.DateLayout, raw)
		if err != nil {
			return filter, fmt.Errorf("%s must be formatted as YYYY-MM-DD", name)
		}
		*target = ptr.Time(date)
	}

	var err error
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		return filter, err
	}
	if paginate {
		switch {
		case filter.Limit == 0:
			filter.Limit = defaultListLimit
		case filter.Limit > maxListLimit:
			filter.Limit = maxListLimit
		}
	}
	return filter, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
