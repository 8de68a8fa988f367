package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joeyave/event-registration/configs"
	"github.com/joeyave/event-registration/controller"
	"github.com/joeyave/event-registration/helpers"
	"github.com/joeyave/event-registration/notification"
	"github.com/joeyave/event-registration/repository/store"
	"github.com/joeyave/event-registration/service"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := configs.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	helpers.SetupLogger(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = st.Close(ctx)
	}()

	queue, err := newQueue(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up notification queue")
	}

	mailer, err := newMailer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up mailer")
	}

	dispatcher := notification.NewDispatcher(queue, st.Events, mailer, notification.DispatcherConfig{
		Workers:  cfg.NotifyWorkers,
		Parallel: cfg.NotifyParallel,
		Renderer: notification.Renderer{
			AppName:  cfg.AppName,
			Locale:   cfg.MailLocale,
			Location: cfg.Location,
		},
	})

	userService := service.NewUserService(st.Users, st.Sessions, st.Events, cfg.SessionTTL)
	eventService := service.NewEventService(st.Events, dispatcher, cfg.Location)

	scheduler, err := newScheduler(cfg, userService, eventService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule jobs")
	}
	scheduler.Start()

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(ctx)
	}()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := controller.NewRouter(
		&controller.UserController{UserService: userService},
		&controller.EventController{EventService: eventService},
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	<-scheduler.Stop().Done()

	_ = queue.Close()
	<-dispatcherDone
}

func newQueue(ctx context.Context, cfg *configs.Config) (notification.Queue, error) {
	if cfg.QueueDriver != configs.QueueRedis {
		return notification.NewChanQueue(cfg.QueueSize), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return notification.NewRedisQueue(client, notification.DefaultRedisKey), nil
}

func newMailer(cfg *configs.Config) (notification.Mailer, error) {
	if cfg.SMTPHost == "" {
		log.Warn().Msg("EVENTS_SMTP_HOST is not set, mails are only logged")
		return notification.LogMailer{}, nil
	}

	return notification.NewSMTPMailer(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
}

// newScheduler registers the maintenance jobs. An empty schedule disables a job.
func newScheduler(cfg *configs.Config, userService *service.UserService, eventService *service.EventService) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(cfg.Location))

	if cfg.ReconcileSpec != "" {
		_, err := c.AddFunc(cfg.ReconcileSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			fixed, err := eventService.ReconcileSlots(ctx)
			if err != nil {
				log.Error().Err(err).Msg("slot reconciliation failed")
				return
			}
			log.Info().Int("fixed", fixed).Msg("slot reconciliation finished")
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.SessionPurgeSpec != "" {
		_, err := c.AddFunc(cfg.SessionPurgeSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			purged, err := userService.PurgeExpiredSessions(ctx)
			if err != nil {
				log.Error().Err(err).Msg("session purge failed")
				return
			}
			log.Debug().Int64("purged", purged).Msg("expired sessions purged")
		})
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}
