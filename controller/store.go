package controller

import (
	"strconv"

	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/coordinator"
	"github.com/dualtier/dtman/model"
	"github.com/dualtier/dtman/repository"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type StoreController struct {
	config *config.DTManConfig
	co     *coordinator.Coordinator
}

func NewStoreController(config *config.DTManConfig, co *coordinator.Coordinator) *StoreController {
	return &StoreController{
		config: config,
		co:     co,
	}
}

func (controller *StoreController) StoreRecord(c *gin.Context) {
	var req StoreRecordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		model.WrapMsg(c, model.E_INVALID_PARAMS, err.Error())
		return
	}
	if req.Kind == "" || req.Payload == "" {
		model.WrapMsg(c, model.E_DATA_EMPTY, "kind and payload are required")
		return
	}
	result := controller.co.Store(c.Request.Context(), req.Kind, req.Payload)
	if !result.Success {
		model.WrapMsg(c, model.E_DATA_INSERT_FAILED, result)
		return
	}
	model.WrapMsg(c, model.E_SUCCESS, result)
}

func (controller *StoreController) GetRecord(c *gin.Context) {
	id := c.Param("id")
	record, err := controller.co.Fetch(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			model.WrapMsg(c, model.E_DATA_NOT_EXIST, id)
			return
		}
		model.WrapMsg(c, model.E_DATA_SELECT_FAILED, err.Error())
		return
	}
	model.WrapMsg(c, model.E_SUCCESS, record)
}

func (controller *StoreController) GetRecentRecords(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		model.WrapMsg(c, model.E_INVALID_PARAMS, "limit must be a positive integer")
		return
	}
	records, err := controller.co.ListRecent(limit)
	if err != nil {
		model.WrapMsg(c, model.E_DATA_SELECT_FAILED, err.Error())
		return
	}
	model.WrapMsg(c, model.E_SUCCESS, records)
}

func (controller *StoreController) InvalidateRecord(c *gin.Context) {
	id := c.Param("id")
	controller.co.Invalidate(c.Request.Context(), id)
	model.WrapMsg(c, model.E_SUCCESS, id)
}

func (controller *StoreController) GetConfigEntry(c *gin.Context) {
	key := c.Param("key")
	scope := c.DefaultQuery("scope", "global")
	entry, err := controller.co.GetConfig(key, scope)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			model.WrapMsg(c, model.E_DATA_NOT_EXIST, key)
			return
		}
		model.WrapMsg(c, model.E_DATA_SELECT_FAILED, err.Error())
		return
	}
	model.WrapMsg(c, model.E_SUCCESS, entry)
}

func (controller *StoreController) SetConfigEntry(c *gin.Context) {
	var req ConfigEntryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		model.WrapMsg(c, model.E_INVALID_PARAMS, err.Error())
		return
	}
	if req.Key == "" {
		model.WrapMsg(c, model.E_DATA_EMPTY, "key is required")
		return
	}
	if req.Scope == "" {
		req.Scope = "global"
	}
	err := controller.co.SetConfig(model.ConfigEntry{
		Key:   req.Key,
		Scope: req.Scope,
		Value: req.Value,
	})
	if err != nil {
		model.WrapMsg(c, model.E_DATA_UPDATE_FAILED, err.Error())
		return
	}
	model.WrapMsg(c, model.E_SUCCESS, nil)
}
