package api

import (
	"Mosaic/internal/api/middleware"
	"Mosaic/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		userGroup := apiGroup.Group("/user")
		{
			// 无需登录即可访问的接口
			userGroup.POST("/login", group.UserHandler.Login)
			userGroup.POST("/register", group.UserHandler.Register)

			authGroup := userGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware())
			{
				authGroup.POST("/logout", group.UserHandler.Logout)
				authGroup.GET("/info", group.UserHandler.GetUserInfo)
				authGroup.GET("/all", group.UserHandler.ListUsers)
			}
		}

		imGroup := apiGroup.Group("/im")
		{
			// Websocket 升级自带鉴权，不走 Auth 中间件
			imGroup.GET("", group.WsHandler.Connect)

			authGroup := imGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware())
			{
				authGroup.POST("/send/:receiver_id", group.IMHandler.Send)
				authGroup.GET("/messages/:receiver_id", group.IMHandler.GetMessages)
				authGroup.GET("/conversations", group.IMHandler.GetConversations)
				authGroup.DELETE("/conversations", group.IMHandler.Reset)
				authGroup.POST("/read", group.IMHandler.MarkAsRead)
			}
		}
	}

	return r
}
