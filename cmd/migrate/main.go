// Command migrate applies the SQL schema migrations.
//
//	migrate up
//	migrate down
//	migrate to 3
package main

import (
	"fmt"
	"os"
	"strconv"

	"ms-fest/internal/config"
	"ms-fest/internal/database"
	"ms-fest/internal/database/migrations"
	"ms-fest/internal/logger"

	"github.com/joho/godotenv"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate up | down | to <version>")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	_ = godotenv.Load()
	cfg := config.Load()

	logger := logger.NewLoggerWithDir(cfg.LogDir)
	defer logger.Close()
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("CONFIG", err.Error())
	}

	bunDB, err := database.Connect(cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}

	// Closing the runner also closes bunDB.
	runner := migrations.NewRunner(bunDB, migrations.Options{MigrationsDir: cfg.Database.MigrationsDir}, logger)
	defer runner.Close()

	switch os.Args[1] {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "to":
		if len(os.Args) < 3 {
			usage()
		}
		version, perr := strconv.ParseUint(os.Args[2], 10, 32)
		if perr != nil {
			logger.Fatal("MIGRATE", fmt.Sprintf("invalid version %q", os.Args[2]))
		}
		err = runner.To(uint(version))
	default:
		usage()
	}
	if err != nil {
		logger.Fatal("MIGRATE", err.Error())
	}
	logger.Info("MIGRATE", "Migration completed successfully")
}
