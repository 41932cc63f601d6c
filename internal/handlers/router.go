package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/leveltest-service/internal/services"
	"github.com/SAP-F-2025/leveltest-service/internal/utils"
	"github.com/SAP-F-2025/leveltest-service/internal/validator"
)

// HandlerManager manages all HTTP handlers
type HandlerManager struct {
	levelTestHandler *LevelTestHandler
	questionHandler  *QuestionHandler
}

// NewHandlerManager creates a new handler manager with all handlers
func NewHandlerManager(serviceManager services.ServiceManager, validator *validator.Validator, logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		levelTestHandler: NewLevelTestHandler(serviceManager.LevelTest(), validator, logger),
		questionHandler:  NewQuestionHandler(serviceManager.Question(), serviceManager.ImportExport(), validator, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"service":   "leveltest-service",
		})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(IdentityMiddleware())
	{
		// Level test routes
		levelTests := v1.Group("/level-tests")
		{
			levelTests.POST("", hm.levelTestHandler.StartTest)
			levelTests.GET("/my", hm.levelTestHandler.ListMySessions)
			levelTests.GET("/:id", hm.levelTestHandler.GetSession)
			levelTests.POST("/:id/answers", hm.levelTestHandler.SubmitAnswer)
			levelTests.GET("/:id/result", hm.levelTestHandler.GetResult)
			levelTests.POST("/:id/abandon", hm.levelTestHandler.AbandonSession)

			// Admin views
			admin := levelTests.Group("")
			admin.Use(RequireRole("admin", "teacher"))
			{
				admin.GET("", hm.levelTestHandler.ListSessions)
				admin.GET("/stats", hm.levelTestHandler.GetStats)
			}
		}

		// Question bank routes (content managers only)
		questions := v1.Group("/questions")
		questions.Use(RequireRole("admin", "teacher"))
		{
			questions.POST("", hm.questionHandler.CreateQuestion)
			questions.GET("", hm.questionHandler.ListQuestions)
			questions.GET("/coverage", hm.questionHandler.CountByLevel)
			questions.GET("/export", hm.questionHandler.ExportQuestions)
			questions.POST("/import", hm.questionHandler.ImportQuestions)
			questions.GET("/:id", hm.questionHandler.GetQuestion)
			questions.PUT("/:id", hm.questionHandler.UpdateQuestion)
			questions.DELETE("/:id", hm.questionHandler.DeleteQuestion)
			questions.GET("/:id/stats", hm.questionHandler.GetQuestionStats)
		}
	}
}
