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
	"errors"
	"net/http"

	"github.com/blnkfinance/cashbook"
	"github.com/blnkfinance/cashbook/api/middleware"
	"github.com/blnkfinance/cashbook/config"
	"github.com/blnkfinance/cashbook/internal/apierror"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	cashbook *cashbook.Cashbook
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router.Group("/", middleware.TenantMiddleware())

	router.POST("/entries", a.RecordEntry)
	router.GET("/entries", a.ListEntries)
	router.POST("/entries/check-duplicates", a.CheckDuplicates)
	router.GET("/entries/:id", a.GetEntry)
	router.POST("/entries/:id/cancel", a.CancelEntry)

	router.GET("/balance", a.GetBalance)
	router.GET("/verify", a.VerifyChain)
	router.GET("/export.csv", a.ExportCSV)

	router.POST("/closings", a.CreateClosing)
	router.GET("/closings", a.ListClosings)
	router.GET("/closings/:id", a.GetClosing)
	router.POST("/closings/:id/finalize", a.FinalizeClosing)
	router.GET("/closings/:id/seal", a.VerifyClosingSeal)

	router.GET("/receipts/:id/deletable", a.CanDeleteReceipt)
	return a.router
}

func NewAPI(c *cashbook.Cashbook) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{cashbook: c, router: r}
}

// respondError writes err with the status its code maps to. Details of internal errors stay in the logs.
func respondError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	var apiErr apierror.APIError
	if !errors.As(err, &apiErr) {
		c.JSON(status, apierror.APIError{Code: apierror.ErrInternalServer, Message: "Internal server error"})
		return
	}
	if apiErr.Code == apierror.ErrInternalServer {
		apiErr.Details = nil
	}
	c.JSON(status, apiErr)
}

func invalidRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, apierror.APIError{Code: apierror.ErrInvalidInput, Message: message, Details: err.Error()})
}

func requireParam(c *gin.Context, name string) (string, bool) {
	value, passed := c.Params.Get(name)
	if !passed || value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required. pass " + name + " in the route /:" + name})
		return "", false
	}
	return value, true
}
