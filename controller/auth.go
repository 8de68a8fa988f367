package controller

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joeyave/event-registration/entity"
	"github.com/joeyave/event-registration/service"
)

const (
	actorKey = "actor"
	tokenKey = "token"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*entity.User, error)
}

// RequireAuth resolves the bearer token and stores the user for the handlers.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx.GetHeader("Authorization"))
		if token == "" {
			respondError(ctx, service.ErrUnauthorized)
			return
		}

		user, err := auth.Authenticate(ctx.Request.Context(), token)
		if err != nil {
			respondError(ctx, err)
			return
		}

		ctx.Set(actorKey, user)
		ctx.Set(tokenKey, token)
		ctx.Next()
	}
}

func actor(ctx *gin.Context) *entity.User {
	user, _ := ctx.MustGet(actorKey).(*entity.User)
	return user
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
