// Command reconcile-slots recomputes every event's available slots from its
// subscriptions once and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joeyave/event-registration/configs"
	"github.com/joeyave/event-registration/helpers"
	"github.com/joeyave/event-registration/repository/store"
	"github.com/joeyave/event-registration/service"
)

func main() {
	cfg, err := configs.Load()
	if err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}
	helpers.SetupLogger(cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to open storage: %v", err))
	}
	defer func() { _ = st.Close(context.Background()) }()

	eventService := service.NewEventService(st.Events, nil, cfg.Location)

	fixed, err := eventService.ReconcileSlots(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reconciliation failed after fixing %d events: %v\n", fixed, err)
		os.Exit(1)
	}

	fmt.Printf("Reconciliation finished. fixed=%d\n", fixed)
}
