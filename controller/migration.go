package controller

import (
	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/migrate"
	"github.com/dualtier/dtman/model"
	"github.com/dualtier/dtman/repository"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type MigrationController struct {
	config *config.DTManConfig
	engine *migrate.Engine
}

func NewMigrationController(config *config.DTManConfig, engine *migrate.Engine) *MigrationController {
	return &MigrationController{
		config: config,
		engine: engine,
	}
}

func (controller *MigrationController) GetStatus(c *gin.Context) {
	status, err := controller.engine.Status()
	if err != nil {
		model.WrapMsg(c, model.E_DATA_SELECT_FAILED, err.Error())
		return
	}
	model.WrapMsg(c, model.E_SUCCESS, status)
}

func (controller *MigrationController) Plan(c *gin.Context) {
	var req MigrationReq
	_ = c.ShouldBindJSON(&req)
	pending, err := controller.engine.Plan(req.Target)
	if err != nil {
		model.WrapMsg(c, model.E_MIGRATION_VALIDATE_FAILED, err.Error())
		return
	}
	model.WrapMsg(c, model.E_SUCCESS, pending)
}

func (controller *MigrationController) Apply(c *gin.Context) {
	var req MigrationReq
	_ = c.ShouldBindJSON(&req)
	results, err := controller.engine.Apply(c.Request.Context(), req.Target)
	if err != nil {
		if errors.Is(err, repository.ErrLockHeld) {
			model.WrapMsg(c, model.E_MIGRATION_LOCK_HELD, err.Error())
			return
		}
		model.WrapMsg(c, model.E_MIGRATION_APPLY_FAILED, gin.H{"error": err.Error(), "results": results})
		return
	}
	model.WrapMsg(c, model.E_SUCCESS, results)
}

func (controller *MigrationController) Rollback(c *gin.Context) {
	var req MigrationReq
	_ = c.ShouldBindJSON(&req)
	results, err := controller.engine.RollbackTo(c.Request.Context(), req.Target)
	if err != nil {
		if errors.Is(err, repository.ErrLockHeld) {
			model.WrapMsg(c, model.E_MIGRATION_LOCK_HELD, err.Error())
			return
		}
		model.WrapMsg(c, model.E_MIGRATION_ROLLBACK_FAILED, gin.H{"error": err.Error(), "results": results})
		return
	}
	model.WrapMsg(c, model.E_SUCCESS, results)
}
