package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"golang.org/x/sync/errgroup"

	"vr-gallery/internal/auth"
	"vr-gallery/internal/database"
	"vr-gallery/internal/gallery"
	"vr-gallery/internal/platform/config"
	"vr-gallery/internal/platform/logger"
	"vr-gallery/internal/platform/metrics"
	"vr-gallery/internal/stream"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	dbPath := config.GetEnv("DB_PATH", "vrgallery.db")
	jwtSecret := config.GetEnv("JWT_SECRET", "")
	jwtTTL := config.GetEnvDuration("JWT_TTL", 24*time.Hour)

	log := logger.New(logLevel, logFormat)

	if jwtSecret == "" {
		log.Error("JWT_SECRET must be set")
		os.Exit(1)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	met := metrics.New()

	authSvc := auth.NewService(db, []byte(jwtSecret), jwtTTL)
	authH := auth.NewHandler(authSvc, logger.Component(log, "auth"))

	videoStore := gallery.NewStore(db)
	subs := gallery.NewSubscriptions(db)
	galleryH := gallery.NewHandler(videoStore, logger.Component(log, "gallery"))

	locator := &stream.YtdlpLocator{
		Path:      config.GetEnv("YTDLP_PATH", "yt-dlp"),
		Cookies:   config.GetEnv("YTDLP_COOKIES", ""),
		MaxHeight: config.GetEnvInt("MAX_HEIGHT", 1440),
	}
	writer := &stream.FFmpegWriter{
		Path:           config.GetEnv("FFMPEG_PATH", "ffmpeg"),
		SegmentSeconds: config.GetEnvInt("SEGMENT_SECONDS", 4),
		WindowSize:     config.GetEnvInt("PLAYLIST_WINDOW", 6),
	}
	mgr := stream.NewManager(stream.Config{
		DataDir:        config.GetEnv("STREAM_DATA_DIR", "streams"),
		ReadyTimeout:   config.GetEnvDuration("READY_TIMEOUT", 30*time.Second),
		PollInterval:   config.GetEnvDuration("READY_POLL_INTERVAL", 200*time.Millisecond),
		ResolveTimeout: config.GetEnvDuration("RESOLVE_TIMEOUT", 20*time.Second),
		KillGrace:      config.GetEnvDuration("KILL_GRACE", 3*time.Second),
		IdleTimeout:    config.GetEnvDuration("IDLE_TIMEOUT", 2*time.Minute),
	}, locator, writer, logger.Component(log, "stream"), met)

	var direct stream.DirectStreamer
	if config.GetEnvBool("DIRECT_STREAM_ENABLED", true) {
		direct = &stream.YtdlpDirect{
			Path:      locator.Path,
			Cookies:   locator.Cookies,
			KillGrace: config.GetEnvDuration("KILL_GRACE", 3*time.Second),
			Log:       logger.Component(log, "direct"),
		}
	}
	streamH := stream.NewHandler(mgr, direct, logger.Component(log, "stream"))

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(mgr.ActiveSessions()) }).ServeHTTP(w, r)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Post("/register", authH.Register)
		r.Post("/login", authH.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(authSvc.Middleware)
		r.Use(gallery.RequireSubscriber(subs, log))
		r.Get("/videos", galleryH.ListVideos)
		streamH.Routes(r)
	})

	srv := &http.Server{Addr: ":" + port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mgr.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		log.Info("shutdown signal received, draining connections")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		return mgr.Shutdown(sctx)
	})

	log.Info("server starting",
		"port", port,
		"db_path", dbPath,
		"log_level", logLevel,
	)

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
