package router

import (
	"github.com/dualtier/dtman/cache"
	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/controller"
	"github.com/dualtier/dtman/coordinator"
	"github.com/dualtier/dtman/migrate"
	"github.com/gin-gonic/gin"
)

// Dependencies carries the wired services into the route table.
type Dependencies struct {
	Config      *config.DTManConfig
	Manager     *cache.ClusterManager
	Coordinator *coordinator.Coordinator
	Engine      *migrate.Engine
}

func InitRouterV1(groupV1 *gin.RouterGroup, deps Dependencies) {
	storeController := controller.NewStoreController(deps.Config, deps.Coordinator)
	cacheController := controller.NewCacheController(deps.Config, deps.Manager)
	auditController := controller.NewAuditController(deps.Config, deps.Coordinator)
	migrationController := controller.NewMigrationController(deps.Config, deps.Engine)

	groupV1.POST("/record", storeController.StoreRecord)
	groupV1.GET("/record/:id", storeController.GetRecord)
	groupV1.DELETE("/record/:id", storeController.InvalidateRecord)
	groupV1.GET("/records", storeController.GetRecentRecords)

	groupV1.GET("/config/:key", storeController.GetConfigEntry)
	groupV1.POST("/config", storeController.SetConfigEntry)

	groupV1.GET("/cache/health", cacheController.GetHealth)
	groupV1.GET("/cache/stats", cacheController.GetStats)

	groupV1.POST("/audit/run", auditController.RunAudit)
	groupV1.GET("/audit/reports", auditController.GetReports)
	groupV1.GET("/coordinator/status", auditController.GetStatus)
	groupV1.PUT("/fallback/enable", auditController.EnableFallback)
	groupV1.PUT("/fallback/disable", auditController.DisableFallback)

	groupV1.GET("/migration/status", migrationController.GetStatus)
	groupV1.POST("/migration/plan", migrationController.Plan)
	groupV1.POST("/migration/apply", migrationController.Apply)
	groupV1.POST("/migration/rollback", migrationController.Rollback)
}
