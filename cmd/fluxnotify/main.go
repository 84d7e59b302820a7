// Command fluxnotify runs the notification relay with its configuration taken
// from the environment and an optional .env file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/drblury/fluxnotify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fluxnotify: %v\n", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so that deferred cleanup always happens.
func run() error {
	_ = godotenv.Load()

	var conf Config
	if _, err := env.UnmarshalFromEnviron(&conf); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := fluxnotify.NewJSONServiceLogger(os.Stdout, conf.LogLevel)

	ctx := context.Background()
	svc, err := fluxnotify.NewService(ctx, conf.Relay(), logger, fluxnotify.ServiceDependencies{})
	if err != nil {
		return err
	}
	return svc.Start(ctx)
}
