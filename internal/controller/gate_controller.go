package controller

import (
	"errors"
	"ethics_gate_backend/internal/model"
	"ethics_gate_backend/internal/repository"
	"ethics_gate_backend/internal/service"
	"ethics_gate_backend/internal/util"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type GateController struct {
	gate    *service.GateService
	engine  *service.EngineClient
	results *repository.ResultRepository
}

func NewGateController(gate *service.GateService, engine *service.EngineClient, results *repository.ResultRepository) *GateController {
	return &GateController{gate: gate, engine: engine, results: results}
}

// Check godoc
// @Summary Ask whether the caller may use AI-assisted features right now
// @Tags gate
// @Param taskType query string false "kind of task the caller wants to run"
// @Success 200 {object} util.Response{data=model.GateDecision}
// @Router /gate/check [get]
func (ctl *GateController) Check(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	decision, err := ctl.gate.CanProceed(c.Request.Context(), claims.ExternalID, claims.OrgID, c.Query("taskType"))
	if err != nil {
		gateError(c, err)
		return
	}
	util.Success(c, decision)
}

// StartAssessment godoc
// @Summary Open an assessment session with the engine
// @Tags gate
// @Success 200 {object} util.Response{data=service.SessionHandle}
// @Router /gate/assessment/start [post]
func (ctl *GateController) StartAssessment(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	handle, err := ctl.gate.StartAssessment(c.Request.Context(), claims.ExternalID, claims.OrgID)
	if err != nil {
		gateError(c, err)
		return
	}
	util.Success(c, handle)
}

type questionStepResponse struct {
	Done     bool                    `json:"done"`
	Question *service.EngineQuestion `json:"question,omitempty"`
	Answered int                     `json:"answered"`
	Total    int                     `json:"total"`
	State    *model.GateDecision     `json:"decision,omitempty"`
}

// NextQuestion godoc
// @Summary Fetch the next question of the caller's running session
// @Tags gate
// @Param sessionId path string true "session id"
// @Success 200 {object} util.Response{data=controller.questionStepResponse}
// @Router /gate/assessment/{sessionId}/question [get]
func (ctl *GateController) NextQuestion(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	sessionID := c.Param("sessionId")

	st, err := ctl.ownSession(c, claims.ExternalID, claims.OrgID, sessionID)
	if err != nil {
		return
	}

	q, done, err := ctl.engine.NextQuestion(c.Request.Context(), sessionID)
	if err != nil {
		gateError(c, err)
		return
	}
	if done {
		ctl.finishSession(c, sessionID)
		return
	}
	util.Success(c, questionStepResponse{
		Question: q,
		Answered: st.SessionProgress,
		Total:    st.SessionTotal,
	})
}

type answerRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	Answer     string `json:"answer" binding:"required"`
}

// SubmitAnswer godoc
// @Summary Answer the current question; completes the session when it was the last one
// @Tags gate
// @Param sessionId path string true "session id"
// @Param body body controller.answerRequest true "answer"
// @Success 200 {object} util.Response{data=controller.questionStepResponse}
// @Router /gate/assessment/{sessionId}/answer [post]
func (ctl *GateController) SubmitAnswer(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	sessionID := c.Param("sessionId")

	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	if _, err := ctl.ownSession(c, claims.ExternalID, claims.OrgID, sessionID); err != nil {
		return
	}

	if err := ctl.engine.SubmitAnswer(c.Request.Context(), sessionID, req.QuestionID, req.Answer); err != nil {
		gateError(c, err)
		return
	}

	st, err := ctl.gate.RecordAnswer(c.Request.Context(), claims.ExternalID, claims.OrgID, sessionID)
	if err != nil {
		gateError(c, err)
		return
	}

	q, done, err := ctl.engine.NextQuestion(c.Request.Context(), sessionID)
	if err != nil {
		gateError(c, err)
		return
	}
	if done {
		ctl.finishSession(c, sessionID)
		return
	}
	util.Success(c, questionStepResponse{
		Question: q,
		Answered: st.SessionProgress,
		Total:    st.SessionTotal,
	})
}

// finishSession pulls the scored result from the engine and applies it.
func (ctl *GateController) finishSession(c *gin.Context, sessionID string) {
	result, err := ctl.engine.GetResult(c.Request.Context(), sessionID)
	if err != nil {
		gateError(c, err)
		return
	}
	st, err := ctl.gate.RecordResult(c.Request.Context(), sessionID, result)
	if err != nil {
		gateError(c, err)
		return
	}
	util.Success(c, questionStepResponse{
		Done:     true,
		Answered: st.SessionTotal,
		Total:    st.SessionTotal,
		State: &model.GateDecision{
			Allowed: st.State == model.StatePassed,
			State:   st.State,
		},
	})
}

// RequestRetry godoc
// @Summary Request another attempt after a failed assessment
// @Tags gate
// @Success 200 {object} util.Response{data=model.UserAssessmentState}
// @Router /gate/retry [post]
func (ctl *GateController) RequestRetry(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	st, err := ctl.gate.RequestRetry(c.Request.Context(), claims.ExternalID, claims.OrgID)
	if err != nil {
		gateError(c, err)
		return
	}
	util.Success(c, st)
}

type bypassRequest struct {
	UserID string `json:"userId" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// RequestBypass godoc
// @Summary Approve a manager bypass for a blocked user
// @Tags gate
// @Param body body controller.bypassRequest true "target user and justification"
// @Success 200 {object} util.Response{data=model.GateDecision}
// @Router /gate/bypass [post]
func (ctl *GateController) RequestBypass(c *gin.Context) {
	claims := util.GetUserFromContext(c)

	var req bypassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	decision, err := ctl.gate.RequestBypass(c.Request.Context(), req.UserID, claims.OrgID, claims.ExternalID, req.Reason)
	if err != nil {
		gateError(c, err)
		return
	}
	util.Success(c, decision)
}

// Status godoc
// @Summary Current gate state for the caller
// @Tags gate
// @Success 200 {object} util.Response{data=model.UserAssessmentState}
// @Router /gate/status [get]
func (ctl *GateController) Status(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	st, err := ctl.gate.GetState(c.Request.Context(), claims.ExternalID, claims.OrgID)
	if err != nil {
		gateError(c, err)
		return
	}
	util.Success(c, st)
}

// History godoc
// @Summary Past assessment results for the caller
// @Tags gate
// @Param page query int false "page"
// @Param pageSize query int false "page size"
// @Success 200 {object} util.PageResponse
// @Router /gate/history [get]
func (ctl *GateController) History(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	rows, total, err := ctl.results.ListByUser(c.Request.Context(), claims.ExternalID, claims.OrgID, page, pageSize)
	if err != nil {
		util.LogInternalError(c, err)
		return
	}
	util.SuccessPage(c, rows, total, page, pageSize)
}

// ownSession loads the caller's state and verifies the session belongs to
// them, writing the error response itself when it does not.
func (ctl *GateController) ownSession(c *gin.Context, userID, orgID, sessionID string) (*model.UserAssessmentState, error) {
	st, err := ctl.gate.GetState(c.Request.Context(), userID, orgID)
	if err != nil {
		gateError(c, err)
		return nil, err
	}
	if st.SessionID == nil || *st.SessionID != sessionID {
		util.Error(c, http.StatusNotFound, "no such session")
		return nil, util.ErrSessionNotFound
	}
	return st, nil
}

// gateError maps the service error taxonomy onto HTTP statuses.
func gateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrNotFound),
		errors.Is(err, util.ErrUserNotFound),
		errors.Is(err, util.ErrConfigNotFound),
		errors.Is(err, util.ErrSessionNotFound):
		util.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, util.ErrInvalidState):
		util.Conflict(c, err.Error())
	case errors.Is(err, util.ErrCooldownActive):
		util.Error(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, util.ErrSessionExpired):
		util.Error(c, http.StatusGone, err.Error())
	case errors.Is(err, util.ErrInvalidAnswer):
		util.Error(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, util.ErrUnauthorizedApprover), errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(c)
	case errors.Is(err, util.ErrBypassQuotaExceeded):
		util.Conflict(c, err.Error())
	case errors.Is(err, util.ErrUpstreamUnavailable):
		util.Error(c, http.StatusBadGateway, err.Error())
	default:
		util.LogInternalError(c, err)
	}
}
