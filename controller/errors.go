package controller

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/joeyave/event-registration/service"
	"github.com/rs/zerolog/log"
)

const msgInvalidData = "The given data was invalid."

// respondError writes the JSON error response for err and aborts the chain.
func respondError(ctx *gin.Context, err error) {
	_ = ctx.Error(err)

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		abortValidation(ctx, verr.Fields)
	case errors.Is(err, service.ErrUnauthorized):
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
	case errors.Is(err, service.ErrForbidden):
		ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "This action is unauthorized."})
	case errors.Is(err, service.ErrEventNotFound):
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "This event does not exist."})
	case errors.Is(err, service.ErrNotFound):
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Not found."})
	case errors.Is(err, service.ErrAlreadyCancelled):
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "This event is already canceled."})
	case errors.Is(err, service.ErrNotSubscribed):
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "You are not subscribed to this event."})
	case errors.Is(err, service.ErrEventInactive):
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "This event is canceled."})
	case errors.Is(err, service.ErrOrganizerHasEvents):
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "You cannot delete an account that still owns events."})
	default:
		log.Error().Err(err).Str("path", ctx.Request.URL.Path).Msg("request failed")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Server Error"})
	}
}

// abortValidation answers 422 with every field error; "message" repeats the
// first one in field order.
func abortValidation(ctx *gin.Context, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	message := msgInvalidData
	errs := make(map[string][]string, len(fields))
	for i, k := range keys {
		if i == 0 {
			message = fields[k]
		}
		errs[k] = []string{fields[k]}
	}

	ctx.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
		"message": message,
		"errors":  errs,
	})
}
