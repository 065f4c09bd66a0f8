package controller

import (
	"strconv"

	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/coordinator"
	"github.com/dualtier/dtman/model"
	"github.com/gin-gonic/gin"
)

type AuditController struct {
	config *config.DTManConfig
	co     *coordinator.Coordinator
}

func NewAuditController(config *config.DTManConfig, co *coordinator.Coordinator) *AuditController {
	return &AuditController{
		config: config,
		co:     co,
	}
}

func (controller *AuditController) RunAudit(c *gin.Context) {
	report, err := controller.co.RunConsistencyAudit(c.Request.Context())
	if err != nil {
		model.WrapMsg(c, model.E_AUDIT_FAILED, err.Error())
		return
	}
	model.WrapMsg(c, model.E_SUCCESS, report)
}

func (controller *AuditController) GetReports(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		model.WrapMsg(c, model.E_INVALID_PARAMS, "limit must be a positive integer")
		return
	}
	reports, err := controller.co.RecentAuditReports(limit)
	if err != nil {
		model.WrapMsg(c, model.E_DATA_SELECT_FAILED, err.Error())
		return
	}
	model.WrapMsg(c, model.E_SUCCESS, reports)
}

func (controller *AuditController) EnableFallback(c *gin.Context) {
	var req FallbackReq
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual"
	}
	controller.co.EnableFallback(req.Reason)
	model.WrapMsg(c, model.E_SUCCESS, gin.H{"fallback_mode": controller.co.FallbackMode()})
}

func (controller *AuditController) DisableFallback(c *gin.Context) {
	controller.co.DisableFallback()
	model.WrapMsg(c, model.E_SUCCESS, gin.H{"fallback_mode": controller.co.FallbackMode()})
}

func (controller *AuditController) GetStatus(c *gin.Context) {
	model.WrapMsg(c, model.E_SUCCESS, gin.H{
		"fallback_mode": controller.co.FallbackMode(),
		"queue_depth":   controller.co.QueueDepth(),
	})
}
