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
	"bytes"
	"fmt"
	"net/http"

	"github.com/blnkfinance/cashbook/api/middleware"
	"github.com/gin-gonic/gin"
)

func (a Api) GetBalance(c *gin.Context) {
	resp, err := a.cashbook.GetChainStatus(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// VerifyChain answers 200 for a broken chain as well; the break is part of the report.
func (a Api) VerifyChain(c *gin.Context) {
	resp, err := a.cashbook.VerifyChain(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) ExportCSV(c *gin.Context) {
	filter, err := ParseEntryFilter(c, false)
	if err != nil {
		invalidRequest(c, "invalid filter", err)
		return
	}

	tenantID := middleware.TenantID(c)
	var buf bytes.Buffer
	if err := a.cashbook.ExportCSV(c.Request.Context(), tenantID, filter, &buf); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="cashbook-%s.csv"`, tenantID))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
