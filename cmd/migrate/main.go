// migrate applies or rolls back the embedded SQL migrations: go run ./cmd/migrate -direction up.
package main

import (
	"flag"
	"fmt"
	"os"

	"identity-session-engine/internal/config"
	"identity-session-engine/internal/db/migrate"
	"identity-session-engine/internal/logger"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	list := flag.Bool("list", false, "Print the embedded migration files and exit")
	flag.Parse()

	if *list {
		files, err := migrate.Files()
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is not set; set it in the environment or .env")
		os.Exit(1)
	}
	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		log.Error("migrate failed", "direction", *direction, "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "direction", *direction)
}
