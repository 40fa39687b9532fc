package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/ispops/faultline/internal/alarming/service/alarmsvc"
)

// IngestAlarm implements POST /v1/alarms, the webhook that monitoring systems
// push raw fault events into. Duplicate occurrences update the open alarm and
// return 200; new alarms return 201.
func (api *Api) IngestAlarm(c *gin.Context) {
	var in alarmsvc.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		renderInvalidParam(c, "invalid request body: "+err.Error())
		return
	}
	if in.TenantID == "" {
		in.TenantID = tenantFrom(c)
	}
	if in.TenantID == "" || in.AlarmID == "" {
		renderInvalidParam(c, "tenant_id and alarm_id are required")
		return
	}
	a, created, err := api.alarms.CreateAlarm(c.Request.Context(), in)
	if err != nil {
		renderError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, a)
}

func (api *Api) ListAlarms(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	status := model.Status(strings.TrimSpace(c.DefaultQuery("status", string(model.StatusActive))))
	switch status {
	case model.StatusActive, model.StatusAcknowledged, model.StatusSuppressed, model.StatusCleared:
	default:
		renderInvalidParam(c, "status must be one of active, acknowledged, suppressed, cleared")
		return
	}
	limit := 50
	if s := strings.TrimSpace(c.Query("limit")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 500 {
			renderInvalidParam(c, "limit must be 1-500")
			return
		}
		limit = v
	}
	items, err := api.alarms.ListByStatus(c.Request.Context(), tenantID, status, limit)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (api *Api) GetAlarm(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	a, err := api.alarms.Get(c.Request.Context(), tenantID, c.Param("alarmID"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// GetAlarmGroup returns the full correlation group of an alarm: the alarm
// itself when ungrouped, otherwise every member sharing its correlation id.
func (api *Api) GetAlarmGroup(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	group, err := api.alarms.Group(c.Request.Context(), tenantID, c.Param("alarmID"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": group})
}

type ackRequest struct {
	By string `json:"by"`
}

func (api *Api) AcknowledgeAlarm(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.By) == "" {
		renderInvalidParam(c, "by is required")
		return
	}
	a, err := api.alarms.Acknowledge(c.Request.Context(), tenantID, c.Param("alarmID"), req.By)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (api *Api) ClearAlarm(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	a, err := api.alarms.Clear(c.Request.Context(), tenantID, c.Param("alarmID"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (api *Api) ResolveAlarm(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	a, err := api.alarms.Resolve(c.Request.Context(), tenantID, c.Param("alarmID"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type ticketRequest struct {
	TicketID string `json:"ticket_id"`
}

func (api *Api) LinkTicket(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	var req ticketRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.TicketID) == "" {
		renderInvalidParam(c, "ticket_id is required")
		return
	}
	a, err := api.alarms.LinkTicket(c.Request.Context(), tenantID, c.Param("alarmID"), req.TicketID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Recorrelate re-runs the correlation pipeline over every open alarm of a
// tenant, typically after a rule change.
func (api *Api) Recorrelate(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	n, err := api.correlation.RecorrelateAll(c.Request.Context(), tenantID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": n})
}

type maintenanceRequest struct {
	Name              string              `json:"name"`
	StartTime         time.Time           `json:"start_time"`
	EndTime           time.Time           `json:"end_time"`
	SuppressAlarms    bool                `json:"suppress_alarms"`
	AffectedResources map[string][]string `json:"affected_resources"`
}

func (api *Api) CreateMaintenanceWindow(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderInvalidParam(c, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || req.StartTime.IsZero() || req.EndTime.IsZero() {
		renderInvalidParam(c, "name, start_time and end_time are required")
		return
	}
	if !req.EndTime.After(req.StartTime) {
		renderInvalidParam(c, "end_time must be after start_time")
		return
	}
	w := &model.MaintenanceWindow{
		TenantID:          tenantID,
		Name:              req.Name,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		SuppressAlarms:    req.SuppressAlarms,
		AffectedResources: req.AffectedResources,
	}
	if err := api.alarms.CreateMaintenanceWindow(c.Request.Context(), w); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}
