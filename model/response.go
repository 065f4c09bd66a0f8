package model

import (
	"net/http"

	"github.com/dualtier/dtman/log"
	"github.com/gin-gonic/gin"
)

type ResponseBody struct {
	RetCode string      `json:"retCode"`
	RetMsg  string      `json:"retMsg"`
	Entity  interface{} `json:"entity"`
}

func WrapMsg(c *gin.Context, retCode string, entity interface{}) {
	c.JSON(http.StatusOK, ResponseBody{
		RetCode: retCode,
		RetMsg:  GetMsg(retCode),
		Entity:  entity,
	})
	if retCode != E_SUCCESS {
		log.Logger.Errorf("%s %s return %s, %v", c.Request.Method, c.Request.RequestURI, retCode, entity)
	}
}
