package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joeyave/event-registration/service"
)

type UserController struct {
	UserService *service.UserService
}

func (c *UserController) Register(ctx *gin.Context) {
	var in service.RegisterInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		abortValidation(ctx, map[string]string{"body": err.Error()})
		return
	}

	user, err := c.UserService.Register(ctx.Request.Context(), in)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"data": user})
}

func (c *UserController) Login(ctx *gin.Context) {
	var in service.LoginInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		abortValidation(ctx, map[string]string{"body": err.Error()})
		return
	}

	user, token, err := c.UserService.Login(ctx.Request.Context(), in)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"data": user, "token": token})
}

func (c *UserController) Logout(ctx *gin.Context) {
	if err := c.UserService.Logout(ctx.Request.Context(), ctx.GetString(tokenKey)); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Logout successful."})
}

func (c *UserController) Me(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"data": actor(ctx)})
}

func (c *UserController) Delete(ctx *gin.Context) {
	if err := c.UserService.Delete(ctx.Request.Context(), actor(ctx)); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Account deleted."})
}
