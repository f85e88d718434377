package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sfutils "github.com/cyber-nic/scaffold/libs/utils"
	"github.com/rs/zerolog/log"
)

func main() {
	var addr = flag.String("addr", "", "http service address (default localhost:8000)")
	var debug = flag.Bool("debug", false, "enable debug mode")
	var configPath = flag.String("config", "scaffold.yaml", "optional YAML config file")
	flag.Parse()

	cfg := defaultConfig()
	cfgErr := sfutils.LoadYAML(*configPath, &cfg)
	if *addr != "" {
		cfg.Addr = *addr
	}

	var logOpts []sfutils.LogOption
	if cfg.LogFile != "" {
		logOpts = append(logOpts, sfutils.WithLogFile(cfg.LogFile))
	}
	closer := sfutils.ConfigLogging(debug, logOpts...)
	defer closer.Close()

	if cfgErr != nil {
		log.Fatal().Err(cfgErr).Msg("failed to load config")
	}

	// context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, cfg, newModelFactory(cfg.OllamaURL)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Err(err).Msg("shutdown")
		}
	}()

	log.Info().
		Str("proto", "http").
		Str("addr", cfg.Addr).
		Str("chat_model", cfg.ChatModel).
		Str("template_model", cfg.TemplateModel).
		Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("failed to start server")
	}
	log.Info().Msg("server stopped")
}
