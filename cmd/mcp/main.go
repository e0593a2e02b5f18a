package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/mark3labs/mcp-go/server"

	"aca-sandbox/internal/app"
	"aca-sandbox/internal/config"
)

func main() {
	_ = godotenv.Load()

	// stdout carries the protocol; logs go to stderr.
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}

	a, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble sandbox")
	}
	defer a.Close()

	s := server.NewMCPServer("aca-sandbox", "0.1.0")
	registerTools(s, &tools{svc: a.Service, maxCodeChars: cfg.Server.MaxCodeChars})

	log.Info().Str("sandbox_dir", cfg.Sandbox.Dir).Msg("serving MCP over stdio")
	if err := server.ServeStdio(s); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}
