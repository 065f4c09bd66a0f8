package controller

import (
	"github.com/dualtier/dtman/cache"
	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/model"
	"github.com/gin-gonic/gin"
)

type CacheController struct {
	config  *config.DTManConfig
	manager *cache.ClusterManager
}

func NewCacheController(config *config.DTManConfig, manager *cache.ClusterManager) *CacheController {
	return &CacheController{
		config:  config,
		manager: manager,
	}
}

func (controller *CacheController) GetHealth(c *gin.Context) {
	model.WrapMsg(c, model.E_SUCCESS, controller.manager.HealthStatus())
}

func (controller *CacheController) GetStats(c *gin.Context) {
	model.WrapMsg(c, model.E_SUCCESS, controller.manager.Metrics())
}
