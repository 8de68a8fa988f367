package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/schema"
	"github.com/joeyave/event-registration/entity"
	"github.com/joeyave/event-registration/service"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var decoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

var subscribeMessages = map[entity.SubscribeResult]string{
	entity.SubscribeSuccess:           "Successfully subscribed to the event!",
	entity.SubscribeAlreadySubscribed: "You are already subscribed to this event.",
	entity.SubscribeInactiveEvent:     "This event is canceled.",
	entity.SubscribeNoSlots:           "No available slots for this event.",
}

type EventController struct {
	EventService *service.EventService
}

func (c *EventController) Index(ctx *gin.Context) {
	var q service.ListEventsQuery
	if err := decoder.Decode(&q, ctx.Request.URL.Query()); err != nil {
		abortValidation(ctx, map[string]string{"query": err.Error()})
		return
	}

	events, err := c.EventService.List(ctx.Request.Context(), actor(ctx), q)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"data": events})
}

func (c *EventController) Store(ctx *gin.Context) {
	var in service.CreateEventInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		abortValidation(ctx, map[string]string{"body": err.Error()})
		return
	}

	event, err := c.EventService.Create(ctx.Request.Context(), actor(ctx), in)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"data": event})
}

func (c *EventController) Show(ctx *gin.Context) {
	eventID, ok := eventIDParam(ctx)
	if !ok {
		return
	}

	event, err := c.EventService.Get(ctx.Request.Context(), actor(ctx), eventID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"data": event})
}

func (c *EventController) Update(ctx *gin.Context) {
	eventID, ok := eventIDParam(ctx)
	if !ok {
		return
	}

	var in service.UpdateEventInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		abortValidation(ctx, map[string]string{"body": err.Error()})
		return
	}

	event, err := c.EventService.Update(ctx.Request.Context(), actor(ctx), eventID, in)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"data": event})
}

func (c *EventController) Destroy(ctx *gin.Context) {
	eventID, ok := eventIDParam(ctx)
	if !ok {
		return
	}

	if err := c.EventService.Cancel(ctx.Request.Context(), actor(ctx), eventID); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Event canceled successfully."})
}

func (c *EventController) Subscribe(ctx *gin.Context) {
	eventID, ok := eventIDParam(ctx)
	if !ok {
		return
	}

	res, err := c.EventService.Subscribe(ctx.Request.Context(), actor(ctx), eventID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	status := http.StatusOK
	if !res.OK() {
		status = http.StatusBadRequest
	}
	ctx.JSON(status, gin.H{"message": subscribeMessages[res], "result": res})
}

func (c *EventController) Unsubscribe(ctx *gin.Context) {
	eventID, ok := eventIDParam(ctx)
	if !ok {
		return
	}

	if err := c.EventService.Unsubscribe(ctx.Request.Context(), actor(ctx), eventID); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Successfully unsubscribed from the event."})
}

func (c *EventController) MyEvents(ctx *gin.Context) {
	events, err := c.EventService.MyEvents(ctx.Request.Context(), actor(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"data": events})
}

// eventIDParam parses :id. A malformed id cannot name an event, so it is a 404.
func eventIDParam(ctx *gin.Context) (bson.ObjectID, bool) {
	eventID, err := bson.ObjectIDFromHex(ctx.Param("id"))
	if err != nil {
		respondError(ctx, service.ErrEventNotFound)
		return bson.NilObjectID, false
	}
	return eventID, true
}
