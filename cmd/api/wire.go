package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/config"
	"qrattend/internal/events"
	"qrattend/internal/handler"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/store"
)

type roster interface {
	auth.Roster
	Upsert(ctx context.Context, id attendance.Identity) error
}

// deps are the backends selected by configuration.
type deps struct {
	days     attendance.DayStore
	roster   roster
	provider auth.Provider
	sessions auth.SessionCache
	bus      events.Bus
	limiter  httpmiddleware.Limiter
	checks   map[string]handler.HealthCheck

	closers []func() error
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

func wire(ctx context.Context, cfg config.App, log *zap.Logger) (*deps, error) {
	d := &deps{checks: make(map[string]handler.HealthCheck)}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	var rdb *store.Redis
	if cfg.NeedsRedis() {
		rdb = store.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		d.closers = append(d.closers, rdb.Close)
		d.checks["redis"] = rdb.Healthy
	}

	var fb *store.Firebase
	if cfg.NeedsFirebase() {
		var err error
		fb, err = store.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, fb.Close)
	}

	switch cfg.StoreBackend {
	case "postgres", "sqlite":
		dsn := cfg.DatabaseURL
		if cfg.StoreBackend == "sqlite" {
			dsn = cfg.SQLitePath
		}
		db, err := store.NewDB(ctx, cfg.StoreBackend, dsn)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db.Close)
		d.checks["db"] = db.Healthy
		d.days, d.roster = store.NewSQLDays(db), store.NewSQLRoster(db)
	case "redis":
		d.days, d.roster = store.NewRedisDays(rdb.Client), store.NewRedisRoster(rdb.Client)
	case "firestore":
		d.days = store.NewFirestoreDays(fb.Firestore, "")
		d.roster = store.NewFirestoreRoster(fb.Firestore, "")
	default:
		log.Warn("using in-memory attendance store; records are lost on restart")
		d.days, d.roster = store.NewMemoryDays(), store.NewMemoryRoster()
	}

	if cfg.RosterFile != "" {
		ids, err := store.LoadRosterFile(cfg.RosterFile)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if err := d.roster.Upsert(ctx, id); err != nil {
				return nil, fmt.Errorf("seed roster %s: %w", id.Roll, err)
			}
		}
		log.Info("roster seeded", zap.Int("students", len(ids)), zap.String("file", cfg.RosterFile))
	}

	switch cfg.AuthProvider {
	case "dev":
		log.Warn("dev sign-in enabled: credentials are trusted as email addresses")
		d.provider = auth.DevProvider{}
	default:
		client, err := fb.App.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("firebase auth: %w", err)
		}
		d.provider = auth.NewFirebaseProvider(client)
	}

	if cfg.SessionBackend == "redis" {
		d.sessions = auth.NewRedisCache(rdb.Client)
	} else {
		d.sessions = auth.NewMemoryCache()
	}

	if cfg.EventsBackend == "redis" {
		d.bus = events.NewRedisBus(rdb.Client, "")
	} else {
		d.bus = events.NewInMemory(64)
	}

	if cfg.RateLimitBackend == "redis" {
		d.limiter = httpmiddleware.NewRedisWindow(rdb.Client, cfg.RateLimitPerMin)
	} else {
		d.limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	ok = true
	return d, nil
}
