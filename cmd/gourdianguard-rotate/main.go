// Command gourdianguard-rotate replaces the access and refresh secrets of a
// gourdianguard YAML configuration file with fresh random values.
//
// Every token signed with the old secrets stops verifying once the services
// reading the file are restarted.
//
//	gourdianguard-rotate -config /etc/myapp/auth.yaml
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gourdian25/gourdianguard"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	fs := flag.NewFlagSet("gourdianguard-rotate", flag.ContinueOnError)
	configPath := fs.String("config", "auth.yaml", "path to the YAML configuration file")
	show := fs.Bool("show", false, "print the new secrets to stdout")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	access, refresh, err := gourdianguard.RotateSecrets(*configPath)
	if err != nil {
		logger.Error().Err(err).Str("config", *configPath).Msg("secret rotation failed")
		return 1
	}

	logger.Info().Str("config", *configPath).Msg("access and refresh secrets rotated")
	if *show {
		fmt.Printf("access.secret_key=%s\nrefresh.secret_key=%s\n", access, refresh)
	}
	return 0
}
