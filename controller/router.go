package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/joeyave/event-registration/helpers"
)

func NewRouter(userController *UserController, eventController *EventController) *gin.Engine {
	r := gin.New()
	r.Use(helpers.RequestLogger(), gin.Recovery())

	api := r.Group("/api")
	api.POST("/register", userController.Register)
	api.POST("/login", userController.Login)

	authed := api.Group("", RequireAuth(userController.UserService))
	{
		authed.GET("/user", userController.Me)
		authed.DELETE("/user", userController.Delete)
		authed.POST("/logout", userController.Logout)

		authed.GET("/events", eventController.Index)
		authed.POST("/events", eventController.Store)
		authed.GET("/events/:id", eventController.Show)
		authed.PUT("/events/:id", eventController.Update)
		authed.DELETE("/events/:id", eventController.Destroy)
		authed.POST("/events/:id/subscribe", eventController.Subscribe)
		authed.DELETE("/events/:id/unsubscribe", eventController.Unsubscribe)

		authed.GET("/my-events", eventController.MyEvents)
	}

	return r
}
