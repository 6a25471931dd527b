// Command migrate applies or rolls back the livepoll schema.
//
//	go run ./go/internal/tools/migrate -action up
//	go run ./go/internal/tools/migrate -action down -steps 1
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/dbconfig"
	"github.com/mcdev12/livepoll/go/internal/storage/migrations"
)

func main() {
	var (
		action string
		steps  int
	)
	flag.StringVar(&action, "action", "up", "up, down, force or version")
	flag.IntVar(&steps, "steps", 0, "number of steps for up/down, target version for force")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	dbCfg := dbconfig.NewConfigFromEnv()
	m, err := migrations.New(dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Str("database", dbCfg.Database).Msg("failed to create migrator")
	}
	defer m.Close()

	switch action {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "force":
		err = m.Force(steps)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			log.Fatal().Err(verr).Msg("failed to read version")
		}
		fmt.Printf("Version: %d, Dirty: %v\n", version, dirty)
		return
	default:
		log.Fatal().Str("action", action).Msg("unknown action")
	}

	if err != nil {
		log.Fatal().Err(err).Str("action", action).Msg("migration failed")
	}
	log.Info().Str("action", action).Msg("migration complete")
}
