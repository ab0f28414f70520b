package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"trivia-live-service/internal/cli"
)

func main() {
	if os.Getenv("APP_ENV") != "production" {
		// A local .env is optional.
		_ = godotenv.Load()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
