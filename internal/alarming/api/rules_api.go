package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ispops/faultline/internal/alarming/model"
)

func (api *Api) CreateRule(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	var r model.AlarmRule
	if err := c.ShouldBindJSON(&r); err != nil {
		renderInvalidParam(c, "invalid request body: "+err.Error())
		return
	}
	r.TenantID = tenantID
	if err := api.rules.CreateRule(c.Request.Context(), &r); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (api *Api) ListRules(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	items, err := api.rules.ListRules(c.Request.Context(), tenantID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (api *Api) GetRule(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	r, err := api.rules.GetRule(c.Request.Context(), tenantID, c.Param("ruleID"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (api *Api) UpdateRule(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	var r model.AlarmRule
	if err := c.ShouldBindJSON(&r); err != nil {
		renderInvalidParam(c, "invalid request body: "+err.Error())
		return
	}
	r.ID = c.Param("ruleID")
	r.TenantID = tenantID
	if err := api.rules.UpdateRule(c.Request.Context(), &r); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (api *Api) DeleteRule(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	if err := api.rules.DeleteRule(c.Request.Context(), tenantID, c.Param("ruleID")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (api *Api) EnableRule(c *gin.Context) {
	api.setRuleEnabled(c, true)
}

func (api *Api) DisableRule(c *gin.Context) {
	api.setRuleEnabled(c, false)
}

func (api *Api) setRuleEnabled(c *gin.Context, enabled bool) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		renderInvalidParam(c, "tenant_id is required")
		return
	}
	var err error
	if enabled {
		err = api.rules.EnableRule(c.Request.Context(), tenantID, c.Param("ruleID"))
	} else {
		err = api.rules.DisableRule(c.Request.Context(), tenantID, c.Param("ruleID"))
	}
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}
