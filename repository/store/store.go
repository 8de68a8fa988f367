// Package store opens the configured storage backend and hands out its
// repositories behind the service interfaces.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/joeyave/event-registration/configs"
	"github.com/joeyave/event-registration/migrations"
	"github.com/joeyave/event-registration/repository"
	"github.com/joeyave/event-registration/repository/sqlrepo"
	"github.com/joeyave/event-registration/service"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

type Store struct {
	Users    service.UserRepository
	Sessions service.SessionRepository
	Events   service.EventRepository

	close func(ctx context.Context) error
}

func Open(ctx context.Context, cfg *configs.Config) (*Store, error) {
	switch cfg.StorageDriver {
	case configs.StorageMongo:
		return openMongo(ctx, cfg.MongoURI, cfg.MongoName)
	case configs.StorageSQLite:
		return openSQL(ctx, sqlrepo.DriverSQLite, cfg.SQLDSN)
	case configs.StoragePostgres:
		return openSQL(ctx, sqlrepo.DriverPostgres, cfg.SQLDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

func openSQL(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqlrepo.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}

	log.Info().Str("driver", driver).Msg("connected to SQL storage")
	return &Store{
		Users:    sqlrepo.NewUserRepository(db),
		Sessions: sqlrepo.NewSessionRepository(db),
		Events:   sqlrepo.NewEventRepository(db),
		close:    func(context.Context) error { return db.Close() },
	}, nil
}

func openMongo(ctx context.Context, uri, dbName string) (*Store, error) {
	mongoClient, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = mongoClient.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	if err := migrations.EnsureIndexes(ctx, mongoClient, dbName); err != nil {
		_ = mongoClient.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	log.Info().Str("db", dbName).Msg("connected to MongoDB")
	return &Store{
		Users:    repository.NewUserRepository(mongoClient, dbName),
		Sessions: repository.NewSessionRepository(mongoClient, dbName),
		Events:   repository.NewEventRepository(mongoClient, dbName),
		close:    mongoClient.Disconnect,
	}, nil
}
