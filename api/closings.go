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

func (a Api) CreateClosing(c *gin.Context) {
	var newClosing model2.CreateClosing
	if err := c.ShouldBindJSON(&newClosing); err != nil {
		invalidRequest(c, "invalid closing data", err)
		return
	}
	if err := newClosing.ValidateCreateClosing(); err != nil {
		invalidRequest(c, "invalid closing data", err)
		return
	}

	resp, err := a.cashbook.CreateMonthlyClosing(c.Request.Context(), newClosing.ToCreateClosingRequest(middleware.TenantID(c), middleware.UserID(c)))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) ListClosings(c *gin.Context) {
	resp, err := a.cashbook.ListClosings(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetClosing(c *gin.Context) {
	id, ok := requireParam(c, "id")
	if !ok {
		return
	}

	resp, err := a.cashbook.GetClosing(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) FinalizeClosing(c *gin.Context) {
	id, ok := requireParam(c, "id")
	if !ok {
		return
	}

	var finalize model2.FinalizeClosing
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&finalize); err != nil {
			invalidRequest(c, "invalid finalize data", err)
			return
		}
	}

	resp, err := a.cashbook.FinalizeMonthlyClosing(c.Request.Context(), finalize.ToFinalizeClosingRequest(middleware.TenantID(c), id, middleware.UserID(c)))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) VerifyClosingSeal(c *gin.Context) {
	id, ok := requireParam(c, "id")
	if !ok {
		return
	}

	resp, err := a.cashbook.VerifyClosingSeal(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) CanDeleteReceipt(c *gin.Context) {
	id, ok := requireParam(c, "id")
	if !ok {
		return
	}

	deletable, err := a.cashbook.CanDeleteReceipt(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"receipt_id": id, "deletable": deletable})
}
