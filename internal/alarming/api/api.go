package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/ispops/faultline/internal/alarming/service/alarmsvc"
	"github.com/ispops/faultline/internal/alarming/service/correlation"
	"github.com/ispops/faultline/internal/alarming/service/rules"
	"github.com/ispops/faultline/internal/alarming/service/sla"
	"github.com/ispops/faultline/internal/middleware"
)

type Api struct {
	alarms      *alarmsvc.Service
	rules       *rules.Manager
	correlation *correlation.Engine
	sla         *sla.Engine
	slaStore    sla.Store
}

// Deps carries everything the HTTP surface needs. slaStore is separate from
// the engine because definition/instance provisioning writes straight to
// storage without engine involvement.
type Deps struct {
	Alarms      *alarmsvc.Service
	Rules       *rules.Manager
	Correlation *correlation.Engine
	SLA         *sla.Engine
	SLAStore    sla.Store
	AuthToken   string
}

func New(router *gin.Engine, deps Deps) *Api {
	api := &Api{
		alarms:      deps.Alarms,
		rules:       deps.Rules,
		correlation: deps.Correlation,
		sla:         deps.SLA,
		slaStore:    deps.SLAStore,
	}
	api.setupRouters(router, deps.AuthToken)
	return api
}

func (api *Api) setupRouters(router *gin.Engine, token string) {
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1", middleware.TokenAuth(token))

	v1.POST("/alarms", api.IngestAlarm)
	v1.GET("/alarms", api.ListAlarms)
	v1.GET("/alarms/:alarmID", api.GetAlarm)
	v1.GET("/alarms/:alarmID/group", api.GetAlarmGroup)
	v1.POST("/alarms/:alarmID/ack", api.AcknowledgeAlarm)
	v1.POST("/alarms/:alarmID/clear", api.ClearAlarm)
	v1.POST("/alarms/:alarmID/resolve", api.ResolveAlarm)
	v1.POST("/alarms/:alarmID/ticket", api.LinkTicket)
	v1.POST("/recorrelate", api.Recorrelate)

	v1.POST("/maintenance", api.CreateMaintenanceWindow)

	v1.POST("/rules", api.CreateRule)
	v1.GET("/rules", api.ListRules)
	v1.GET("/rules/:ruleID", api.GetRule)
	v1.PUT("/rules/:ruleID", api.UpdateRule)
	v1.DELETE("/rules/:ruleID", api.DeleteRule)
	v1.POST("/rules/:ruleID/enable", api.EnableRule)
	v1.POST("/rules/:ruleID/disable", api.DisableRule)

	v1.POST("/sla/definitions", api.CreateSLADefinition)
	v1.POST("/sla/instances", api.CreateSLAInstance)
	v1.POST("/sla/instances/:instanceID/downtime", api.RecordDowntime)
	v1.GET("/sla/compliance", api.ComplianceTimeseries)
	v1.GET("/sla/report", api.ComplianceReport)
}

// tenantFrom resolves the tenant either from the query string or the
// X-Tenant-ID header.
func tenantFrom(c *gin.Context) string {
	if t := strings.TrimSpace(c.Query("tenant_id")); t != "" {
		return t
	}
	return strings.TrimSpace(c.GetHeader("X-Tenant-ID"))
}

func renderError(c *gin.Context, err error) {
	code := model.ErrorCode(err)
	status := http.StatusInternalServerError
	switch {
	case model.IsNotFound(err):
		status = http.StatusNotFound
	case model.IsInvalidState(err):
		status = http.StatusConflict
	case model.IsConfiguration(err):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": err.Error()}})
}

func renderInvalidParam(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_PARAMETER", "message": msg}})
}
