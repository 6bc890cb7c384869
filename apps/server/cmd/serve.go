package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"nimmt-lite/apps/server/internal/config"
	"nimmt-lite/apps/server/internal/directory"
	"nimmt-lite/apps/server/internal/gateway"
	"nimmt-lite/apps/server/internal/lobby"
	"nimmt-lite/apps/server/internal/room"
	"nimmt-lite/apps/server/internal/store"
	"nimmt-lite/nimmt"
	"nimmt-lite/nimmt/bot"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the room WebSocket gateway and the room directory API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	config.SetupLogging(cfg.Log)

	engine, err := nimmt.NewEngine(nimmt.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	st, err := store.NewService(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	dir, err := directory.New(cfg.Directory)
	if err != nil {
		return fmt.Errorf("init directory: %w", err)
	}
	defer dir.Close()

	// Rooms release seats through the remote directory when one is
	// configured, otherwise through the in-process one.
	var leaver directory.Leaver = dir
	if cfg.Directory.URL != "" {
		leaver = directory.NewClient(cfg.Directory.URL, cfg.Directory.InternalToken)
	}

	gw := gateway.New(cfg.Server.AllowedOrigins)
	lby := lobby.New(room.Deps{
		Engine:  engine,
		Store:   st,
		Planner: bot.NewPlanner(bot.NewRandomBrain(0), cfg.Bot.MinDelay, cfg.Bot.MaxDelay, 0),
		Leaver:  leaver,
		Send:    gw.Send,
	}, cfg.Room.IdleTTL)

	dirHTTP, err := directory.NewHTTPHandler(dir, cfg.Directory.InternalToken)
	if err != nil {
		return fmt.Errorf("init directory api: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	dirHTTP.RegisterRoutes(r)
	gw.RegisterRoutes(r, lby)

	reapCtx, stopReaper := context.WithCancel(context.Background())
	reaped := make(chan struct{})
	go func() {
		defer close(reaped)
		lby.Run(reapCtx, reapInterval(cfg.Room.IdleTTL))
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("store", cfg.Store.Mode).
			Str("directory", cfg.Directory.Mode).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			stopReaper()
			<-reaped
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	stopReaper()
	<-reaped
	log.Info().Msg("server stopped")
	return nil
}

func reapInterval(idleTTL time.Duration) time.Duration {
	interval := idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}
