package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/ispops/faultline/internal/alarming/service/sla"
)

func (api *Api) CreateSLADefinition(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	var d model.SLADefinition
	if err := c.ShouldBindJSON(&d); err != nil {
		renderInvalidParam(c, "invalid request body: "+err.Error())
		return
	}
	if d.Name == "" || d.AvailabilityTarget <= 0 {
		renderInvalidParam(c, "name and availability_target are required")
		return
	}
	if d.TargetPercent() > 100 {
		renderInvalidParam(c, "availability_target must not exceed 100")
		return
	}
	d.TenantID = tenantID
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.MeasurementPeriodDays <= 0 {
		d.MeasurementPeriodDays = 30
	}
	if err := api.slaStore.CreateDefinition(c.Request.Context(), &d); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (api *Api) CreateSLAInstance(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	var inst model.SLAInstance
	if err := c.ShouldBindJSON(&inst); err != nil {
		renderInvalidParam(c, "invalid request body: "+err.Error())
		return
	}
	if inst.DefinitionID == "" || inst.CustomerID == "" {
		renderInvalidParam(c, "definition_id and customer_id are required")
		return
	}
	inst.TenantID = tenantID
	// the definition must exist before an instance can reference it
	def, err := api.slaStore.GetDefinition(c.Request.Context(), tenantID, inst.DefinitionID)
	if err != nil {
		renderError(c, err)
		return
	}
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.StartDate.IsZero() {
		inst.StartDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if inst.EndDate.IsZero() {
		inst.EndDate = inst.StartDate.AddDate(0, 0, def.MeasurementPeriodDays)
	}
	inst.Enabled = true
	inst.CurrentAvailability = 100
	inst.Status = model.SLACompliant
	if err := api.slaStore.CreateInstance(c.Request.Context(), &inst); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inst)
}

type downtimeRequest struct {
	Minutes float64 `json:"minutes"`
	Planned bool    `json:"planned"`
}

func (api *Api) RecordDowntime(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	var req downtimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderInvalidParam(c, "invalid request body: "+err.Error())
		return
	}
	if err := api.sla.RecordDowntime(c.Request.Context(), tenantID, c.Param("instanceID"), req.Minutes, req.Planned); err != nil {
		renderError(c, err)
		return
	}
	inst, err := api.slaStore.GetInstance(c.Request.Context(), tenantID, c.Param("instanceID"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

// ComplianceTimeseries implements GET /v1/sla/compliance: one record per
// calendar day in [start, end].
func (api *Api) ComplianceTimeseries(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	customerID := strings.TrimSpace(c.Query("customer_id"))
	if customerID == "" {
		renderInvalidParam(c, "customer_id is required")
		return
	}
	start, err := parseDate(c.Query("start"))
	if err != nil {
		renderInvalidParam(c, "start must be YYYY-MM-DD or RFC 3339")
		return
	}
	end, err := parseDate(c.Query("end"))
	if err != nil {
		renderInvalidParam(c, "end must be YYYY-MM-DD or RFC 3339")
		return
	}
	target := 99.9
	if s := strings.TrimSpace(c.Query("target")); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 || v > 100 {
			renderInvalidParam(c, "target must be a percentage in (0, 100]")
			return
		}
		target = v
	}
	exclude := strings.EqualFold(c.Query("exclude_maintenance"), "true")

	days, err := api.sla.CalculateComplianceTimeseries(c.Request.Context(), sla.ComplianceQuery{
		TenantID:           tenantID,
		CustomerID:         customerID,
		StartDate:          start,
		EndDate:            end,
		TargetPercentage:   target,
		ExcludeMaintenance: exclude,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": days})
}

// ComplianceReport implements GET /v1/sla/report. Without an explicit range
// it covers the trailing 30 days.
func (api *Api) ComplianceReport(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	customerID := strings.TrimSpace(c.Query("customer_id"))
	if customerID == "" {
		renderInvalidParam(c, "customer_id is required")
		return
	}
	var start, end time.Time
	var err error
	if s := strings.TrimSpace(c.Query("start")); s != "" {
		if start, err = parseDate(s); err != nil {
			renderInvalidParam(c, "start must be YYYY-MM-DD or RFC 3339")
			return
		}
	}
	if s := strings.TrimSpace(c.Query("end")); s != "" {
		if end, err = parseDate(s); err != nil {
			renderInvalidParam(c, "end must be YYYY-MM-DD or RFC 3339")
			return
		}
	}
	report, err := api.sla.GetComplianceReport(c.Request.Context(), tenantID, customerID, start, end)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
