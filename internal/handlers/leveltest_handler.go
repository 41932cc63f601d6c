package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/leveltest-service/internal/models"
	"github.com/SAP-F-2025/leveltest-service/internal/repositories"
	"github.com/SAP-F-2025/leveltest-service/internal/services"
	"github.com/SAP-F-2025/leveltest-service/internal/utils"
	"github.com/SAP-F-2025/leveltest-service/internal/validator"
)

// LevelTestHandler handles level-test session HTTP requests
type LevelTestHandler struct {
	BaseHandler
	levelTestService services.LevelTestService
	validator        *validator.Validator
}

func NewLevelTestHandler(levelTestService services.LevelTestService, validator *validator.Validator, logger utils.Logger) *LevelTestHandler {
	return &LevelTestHandler{
		BaseHandler:      NewBaseHandler(logger),
		levelTestService: levelTestService,
		validator:        validator,
	}
}

// StartTest starts a new level test for the authenticated learner
// @Summary Start level test
// @Description Starts a new adaptive level test, or resumes the learner's active one
// @Tags level-tests
// @Accept json
// @Produce json
// @Param request body services.StartTestRequest true "Start test data"
// @Success 201 {object} services.SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /level-tests [post]
func (h *LevelTestHandler) StartTest(c *gin.Context) {
	h.LogRequest(c, "Starting level test")

	var req services.StartTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	learnerID, ok := h.getUserID(c)
	if !ok {
		return
	}

	session, err := h.levelTestService.Start(c.Request.Context(), &req, learnerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// SubmitAnswer submits an answer for the session's pending question
// @Summary Submit answer
// @Description Submits one answer and returns the adaptive outcome
// @Tags level-tests
// @Accept json
// @Produce json
// @Param id path uint true "Session ID"
// @Param request body services.SubmitAnswerRequest true "Answer data"
// @Success 200 {object} services.SubmitAnswerResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /level-tests/{id}/answers [post]
func (h *LevelTestHandler) SubmitAnswer(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Submitting answer", "session_id", id, "question_id", req.QuestionID)

	learnerID, ok := h.getUserID(c)
	if !ok {
		return
	}

	result, err := h.levelTestService.SubmitAnswer(c.Request.Context(), id, &req, learnerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSession retrieves a session by ID
// @Summary Get session
// @Description Retrieves a level-test session with its pending question
// @Tags level-tests
// @Produce json
// @Param id path uint true "Session ID"
// @Success 200 {object} services.SessionResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /level-tests/{id} [get]
func (h *LevelTestHandler) GetSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	learnerID, ok := h.getUserID(c)
	if !ok {
		return
	}

	session, err := h.levelTestService.GetByID(c.Request.Context(), id, learnerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetResult retrieves the final result of a completed session
// @Summary Get test result
// @Description Retrieves the computed result of a finished level test
// @Tags level-tests
// @Produce json
// @Param id path uint true "Session ID"
// @Success 200 {object} adaptive.TestResult
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /level-tests/{id}/result [get]
func (h *LevelTestHandler) GetResult(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	learnerID, ok := h.getUserID(c)
	if !ok {
		return
	}

	result, err := h.levelTestService.GetResult(c.Request.Context(), id, learnerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AbandonSession abandons an in-progress session
// @Summary Abandon session
// @Description Marks an in-progress level test as abandoned
// @Tags level-tests
// @Produce json
// @Param id path uint true "Session ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /level-tests/{id}/abandon [post]
func (h *LevelTestHandler) AbandonSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Abandoning session", "session_id", id)

	learnerID, ok := h.getUserID(c)
	if !ok {
		return
	}

	if err := h.levelTestService.Abandon(c.Request.Context(), id, learnerID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Session abandoned",
	})
}

// ListMySessions lists the authenticated learner's sessions
// @Summary List my sessions
// @Description Lists the learner's level-test sessions with pagination
// @Tags level-tests
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /level-tests/my [get]
func (h *LevelTestHandler) ListMySessions(c *gin.Context) {
	learnerID, ok := h.getUserID(c)
	if !ok {
		return
	}

	filters := h.parseSessionFilters(c)

	sessions, total, err := h.levelTestService.GetByLearner(c.Request.Context(), learnerID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.writeSessionPage(c, sessions, total, filters)
}

// ListSessions lists all sessions (admin)
// @Summary List sessions
// @Description Lists level-test sessions across all learners with pagination
// @Tags level-tests
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /level-tests [get]
func (h *LevelTestHandler) ListSessions(c *gin.Context) {
	filters := h.parseSessionFilters(c)

	if learnerID := c.Query("learner_id"); learnerID != "" {
		filters.LearnerID = &learnerID
	}

	sessions, total, err := h.levelTestService.List(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.writeSessionPage(c, sessions, total, filters)
}

// GetStats returns aggregate session statistics (admin)
// @Summary Get session statistics
// @Description Returns aggregate level-test statistics
// @Tags level-tests
// @Produce json
// @Success 200 {object} repositories.SessionStats
// @Router /level-tests/stats [get]
func (h *LevelTestHandler) GetStats(c *gin.Context) {
	stats, err := h.levelTestService.GetStats(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ===== HELPERS =====

func (h *LevelTestHandler) parseSessionFilters(c *gin.Context) repositories.SessionFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	filters := repositories.SessionFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if status := c.Query("status"); status != "" {
		s := models.SessionStatus(status)
		filters.Status = &s
	}
	if level := c.Query("level"); level != "" {
		if parsed, err := models.ParseCEFRLevel(level); err == nil {
			filters.Level = &parsed
		}
	}
	if from := c.Query("date_from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filters.DateFrom = &t
		}
	}
	if to := c.Query("date_to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filters.DateTo = &t
		}
	}

	return filters
}

func (h *LevelTestHandler) writeSessionPage(c *gin.Context, sessions []*models.LevelTestSession, total int64, filters repositories.SessionFilters) {
	size := filters.Limit
	if size == 0 {
		size = 20
	}
	page := filters.Offset/size + 1
	totalPages := (total + int64(size) - 1) / int64(size)

	c.JSON(http.StatusOK, gin.H{
		"data":        sessions,
		"total":       total,
		"page":        page,
		"size":        size,
		"total_pages": totalPages,
	})
}

func (h *LevelTestHandler) handleServiceError(c *gin.Context, err error) {
	// Handle custom error types first
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: fieldErrors,
		})
		return
	}

	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule":    businessRuleError.Rule,
				"context": businessRuleError.Context,
			},
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	// Handle specific session errors
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Session not found",
		})
	case errors.Is(err, services.ErrSessionAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied to session",
		})
	case errors.Is(err, services.ErrSessionCompleted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Session already completed",
		})
	case errors.Is(err, services.ErrSessionNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Session is not active",
		})
	case errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Question not found",
		})
	case errors.Is(err, services.ErrQuestionBankExhausted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "No questions available at this level",
		})
	case errors.Is(err, services.ErrQuestionMismatch):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Answer does not match the pending question",
		})
	case errors.Is(err, services.ErrInvalidLevel):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid CEFR level",
		})
	case errors.Is(err, services.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
		})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
