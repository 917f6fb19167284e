package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"live_engagement/internal/middleware"
	"live_engagement/pkg/logger"
)

// RouterMiddleware - middleware, собранные в main из сервисов и конфигурации
type RouterMiddleware struct {
	PresenterAuth     *middleware.PresenterAuthMiddleware
	RateLimit         *middleware.RateLimitMiddleware
	MessagesPerMinute int
}

func NewRouter(handlers *Handlers, mw RouterMiddleware, production bool, log logger.Logger) *gin.Engine {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/ready", handlers.Health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws/rooms/:category/:code", handlers.WebSocket.HandleRoom)

	postLimit := func(c *gin.Context) { c.Next() }
	if mw.RateLimit != nil {
		postLimit = mw.RateLimit.Limit("messages", mw.MessagesPerMinute, time.Minute)
	}

	v1 := router.Group("/api/v1")
	{
		// Гости: без аутентификации, participant_id для лайков
		guests := v1.Group("")
		guests.Use(middleware.ParticipantMiddleware())
		{
			guests.GET("/rooms/:category/:code/messages", handlers.Engagement.ListMessages)
			guests.POST("/rooms/:category/:code/messages", postLimit, handlers.Engagement.PostMessage)
			guests.POST("/rooms/:category/:code/messages/:id/replies", postLimit, handlers.Engagement.PostReply)
			guests.POST("/messages/:id/like", handlers.Engagement.Like)
		}

		presenter := v1.Group("/rooms/:category/:code")
		presenter.Use(mw.PresenterAuth.RequirePresenter())
		{
			presenter.POST("/auto-reply", handlers.Presenter.ToggleAutoReply)
			presenter.POST("/end", handlers.Presenter.EndSession)
			presenter.POST("/ai/comment", handlers.Presenter.StartAIComment)
			presenter.POST("/ai/question", handlers.Presenter.StartAIQuestion)
			presenter.GET("/state", handlers.Presenter.State)
		}
	}

	return router
}
