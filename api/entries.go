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
	"net/http"

	"github.com/blnkfinance/cashbook/api/middleware"
	model2 "github.com/blnkfinance/cashbook/api/model"
	"github.com/gin-gonic/gin"
)

// RecordEntry books a cash movement. A suspected duplicate is answered with 409 and the
// matching entry; resend with "force": true to book it anyway.
func (a Api) RecordEntry(c *gin.Context) {
	var newEntry model2.RecordEntry
	if err := c.ShouldBindJSON(&newEntry); err != nil {
		invalidRequest(c, "invalid entry data", err)
		return
	}
	if err := newEntry.ValidateRecordEntry(); err != nil {
		invalidRequest(c, "invalid entry data", err)
		return
	}

	resp, err := a.cashbook.RecordEntry(c.Request.Context(), newEntry.ToRecordEntryRequest(middleware.TenantID(c), middleware.UserID(c)))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetEntry(c *gin.Context) {
	id, ok := requireParam(c, "id")
	if !ok {
		return
	}

	resp, err := a.cashbook.GetEntry(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) ListEntries(c *gin.Context) {
	filter, err := ParseEntryFilter(c, true)
	if err != nil {
		invalidRequest(c, "invalid filter", err)
		return
	}

	resp, err := a.cashbook.ListEntries(c.Request.Context(), middleware.TenantID(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) CancelEntry(c *gin.Context) {
	id, ok := requireParam(c, "id")
	if !ok {
		return
	}

	var cancellation model2.CancelEntry
	if err := c.ShouldBindJSON(&cancellation); err != nil {
		invalidRequest(c, "invalid cancellation data", err)
		return
	}
	if err := cancellation.ValidateCancelEntry(); err != nil {
		invalidRequest(c, "invalid cancellation data", err)
		return
	}

	resp, err := a.cashbook.CancelEntry(c.Request.Context(), cancellation.ToCancelEntryRequest(middleware.TenantID(c), id, middleware.UserID(c)))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) CheckDuplicates(c *gin.Context) {
	var check model2.CheckDuplicates
	if err := c.ShouldBindJSON(&check); err != nil {
		invalidRequest(c, "invalid duplicate check", err)
		return
	}
	if err := check.ValidateCheckDuplicates(); err != nil {
		invalidRequest(c, "invalid duplicate check", err)
		return
	}

	c.JSON(http.StatusOK, a.cashbook.CheckForDuplicates(c.Request.Context(), check.ToDuplicateCheck(middleware.TenantID(c))))
}
