package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/virusspread/internal/config"
	"github.com/robalobadob/virusspread/internal/database"
	"github.com/robalobadob/virusspread/internal/httpserver"
	"github.com/robalobadob/virusspread/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	db, err := database.OpenMigrated(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.DBPath).Msg("failed to open database")
	}
	defer db.Close()

	mem := store.NewMemoryStore()
	srv := httpserver.New(cfg, mem, db)
	go srv.RunJanitor(context.Background(), cfg.SessionIdle/4, cfg.SessionIdle)
	log.Info().Str("port", cfg.Port).Int("maxLevel", cfg.MaxLevel).Msg("starting virusspread server")
	if err := srv.Start(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
