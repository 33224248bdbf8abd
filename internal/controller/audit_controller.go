package controller

import (
	"ethics_gate_backend/internal/model"
	"ethics_gate_backend/internal/service"
	"ethics_gate_backend/internal/util"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type AuditController struct {
	audits *service.AuditService
}

func NewAuditController(audits *service.AuditService) *AuditController {
	return &AuditController{audits: audits}
}

// Query godoc
// @Summary List audit entries, newest first
// @Tags audit
// @Param userId query string false "filter by user"
// @Param eventType query string false "transition, decision or bypass"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param limit query int false "max entries, capped at 1000"
// @Success 200 {object} util.Response{data=[]model.AuditLogEntry}
// @Router /audit [get]
func (ctl *AuditController) Query(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	q := model.AuditQuery{
		OrgID:     claims.OrgID,
		UserID:    c.Query("userId"),
		EventType: model.AuditEventType(c.Query("eventType")),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			util.BadRequest(c, "invalid from timestamp")
			return
		}
		q.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			util.BadRequest(c, "invalid to timestamp")
			return
		}
		q.To = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			util.BadRequest(c, "invalid limit")
			return
		}
		q.Limit = n
	}

	entries, err := ctl.audits.Query(c.Request.Context(), q)
	if err != nil {
		util.LogInternalError(c, err)
		return
	}
	util.Success(c, entries)
}

// Chain godoc
// @Summary Full audit chain for one user, oldest first
// @Tags audit
// @Param userId path string true "external user id"
// @Success 200 {object} util.Response{data=[]model.AuditLogEntry}
// @Router /audit/{userId}/chain [get]
func (ctl *AuditController) Chain(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	entries, err := ctl.audits.Chain(c.Request.Context(), c.Param("userId"), claims.OrgID)
	if err != nil {
		util.LogInternalError(c, err)
		return
	}
	util.Success(c, entries)
}

// Verify godoc
// @Summary Recompute a user's audit chain and report the first break
// @Tags audit
// @Param userId path string true "external user id"
// @Success 200 {object} util.Response{data=service.ChainReport}
// @Router /audit/{userId}/verify [get]
func (ctl *AuditController) Verify(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	report, err := ctl.audits.VerifyChain(c.Request.Context(), c.Param("userId"), claims.OrgID)
	if err != nil {
		util.LogInternalError(c, err)
		return
	}
	util.Success(c, report)
}
