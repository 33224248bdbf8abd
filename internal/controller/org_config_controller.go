package controller

import (
	"errors"
	"ethics_gate_backend/internal/model"
	"ethics_gate_backend/internal/service"
	"ethics_gate_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type OrgConfigController struct {
	configs *service.OrgConfigService
}

func NewOrgConfigController(configs *service.OrgConfigService) *OrgConfigController {
	return &OrgConfigController{configs: configs}
}

// Get godoc
// @Summary Fetch the caller organization's assessment policy
// @Tags config
// @Success 200 {object} util.Response{data=model.OrganizationAssessmentConfig}
// @Router /config [get]
func (ctl *OrgConfigController) Get(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	cfg, err := ctl.configs.Get(c.Request.Context(), claims.OrgID)
	if err != nil {
		if errors.Is(err, util.ErrConfigNotFound) {
			util.NotFound(c)
			return
		}
		util.LogInternalError(c, err)
		return
	}
	util.Success(c, cfg)
}

// Put godoc
// @Summary Replace the caller organization's assessment policy
// @Tags config
// @Param body body model.OrganizationAssessmentConfig true "policy document"
// @Success 200 {object} util.Response{data=model.OrganizationAssessmentConfig}
// @Router /config [put]
func (ctl *OrgConfigController) Put(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	var cfg model.OrganizationAssessmentConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		util.BadRequest(c, err.Error())
		return
	}
	// documents are always keyed by the admin's own org
	cfg.OrgID = claims.OrgID

	if err := ctl.configs.Put(c.Request.Context(), &cfg); err != nil {
		util.BadRequest(c, err.Error())
		return
	}
	util.Success(c, cfg)
}
