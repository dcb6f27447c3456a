// migrate applies or reverts the embedded SQL migrations: go run ./cmd/migrate -direction up.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"pmt/backend/internal/config"
	"pmt/backend/internal/db/migrate"
)

func main() {
	directionFlag := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	direction, err := migrate.ParseDirection(*directionFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	version, dirty, err := migrate.Version(cfg.DatabaseURL)
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("no migrations applied")
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate: version:", err)
		os.Exit(1)
	}
	fmt.Printf("schema version %d (dirty=%v)\n", version, dirty)
}
