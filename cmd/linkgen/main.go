// cmd/linkgen/main.go
package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/link-makers/linkgen/internal/cli"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using system environment variables")
	}

	// Execute CLI (app initialization happens inside cli.Execute)
	cli.Execute()
}
