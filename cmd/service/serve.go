package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"musicroom/internal/catalog"
	"musicroom/internal/events"
	"musicroom/internal/httpx"
	"musicroom/internal/lock"
	"musicroom/internal/metrics"
	"musicroom/internal/player"
	"musicroom/internal/playlist"
	"musicroom/internal/realtime"
	"musicroom/internal/session"
	"musicroom/internal/store"
)

type app struct {
	rdb      *redis.Client
	player   *player.Handler
	playlist *playlist.Server
	realtime *realtime.Server
	hub      *realtime.Hub
	metrics  *metrics.Metrics
}

func runServe(ctx context.Context, cfg Config, log zerolog.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := store.AutoMigrate(ctx, pool); err != nil {
		return err
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	a, err := build(cfg, store.NewPostgres(pool), rdb, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router(cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return a.realtime.RunRedisSubscriber(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("lock", cfg.LockBackend).Msg("serve: listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("serve: stopped with error")
		return err
	}
	log.Info().Msg("serve: stopped")
	return nil
}

// build wires the services on top of the postgres store and redis client.
func build(cfg Config, pg *store.Postgres, rdb *redis.Client, log zerolog.Logger) (*app, error) {
	m := metrics.New()

	albums, err := catalog.NewCachedSource(catalog.SourceFunc(pg.AlbumTracks), cfg.AlbumCacheSize)
	if err != nil {
		return nil, err
	}
	resolver := catalog.NewResolver(map[session.ContextType]catalog.Source{
		session.ContextAlbum:    albums,
		session.ContextPlaylist: catalog.SourceFunc(pg.PlaylistTracks),
		session.ContextQueue:    catalog.SourceFunc(pg.QueueTracks),
	})

	locker := newLocker(cfg, rdb)
	pub := events.New(rdb, log.With().Str("component", "events").Logger())

	svc := player.NewService(pg, resolver, locker,
		player.WithPlaylistAccess(playlist.NewViewer(pg)),
		player.WithPublisher(pub),
		player.WithMetrics(m),
		player.WithLogger(log.With().Str("component", "player").Logger()),
	)

	hub := realtime.NewHub(m, log.With().Str("component", "realtime").Logger())

	return &app{
		rdb:      rdb,
		player:   player.NewHandler(svc, log.With().Str("component", "player").Logger()),
		playlist: playlist.NewServer(pg, locker, pub, m, log.With().Str("component", "playlist").Logger()),
		realtime: realtime.NewServer(hub, rdb, cfg.AllowedOrigin, log.With().Str("component", "realtime").Logger()),
		hub:      hub,
		metrics:  m,
	}, nil
}

func newLocker(cfg Config, rdb *redis.Client) lock.Locker {
	opts := lock.Options{
		TTL:        cfg.LockTTL,
		Retries:    cfg.LockRetries,
		RetryDelay: cfg.LockRetryDelay,
	}
	if cfg.LockBackend == lockBackendLocal {
		return lock.NewLocal(opts)
	}
	return lock.NewRedis(rdb, opts)
}

func (a *app) router(cfg Config, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		httpx.RequestLog(log),
		middleware.Recoverer,
		httpx.CORS(cfg.AllowedOrigin),
	)
	if cfg.JWTSecret != "" {
		r.Use(httpx.JWTAuth([]byte(cfg.JWTSecret)))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"service": "musicroom",
		})
	})
	r.Handle("/metrics", a.metrics.Handler())
	r.Mount("/ws", a.realtime.Router())

	r.Group(func(r chi.Router) {
		r.Use(httpx.RateLimit(a.rdb, cfg.RateLimitRPS, log))
		r.Use(httpx.BodyLimit(cfg.MaxBodyBytes))
		r.Mount("/me/player", a.player.Router())
		r.Mount("/", a.playlist.Router())
	})

	return r
}
