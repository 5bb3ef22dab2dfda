package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/wareflow/wareflow-backend/pkg/config"
	"github.com/wareflow/wareflow-backend/pkg/database"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "no .env file, using environment: %v\n", err)
	}

	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [up|down|status|version|redo|reset|up-to VERSION|down-to VERSION]")
	}
	flag.Parse()

	cfg, err := config.Load("migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("migrate", cfg.Server.Environment)

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	arguments := flag.Args()
	if len(arguments) == 0 {
		arguments = []string{"up"}
	}
	command, args := arguments[0], arguments[1:]

	if err := database.Migrate(context.Background(), db.DB.DB, command, args...); err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("migration failed")
	}

	log.Info().Str("command", command).Msg("migration finished")
}
