package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ankyy/musicbox/internal"
	"github.com/ankyy/musicbox/pkg/logger"
	"github.com/joho/godotenv"
)

var log = logger.Get("Main")

// main is the entry point to the program. The users configuration is loaded
// from the YAML file provided (overlaid with environment variables), the
// engine core is constructed, and then run until an interrupt is received.
func main() {
	configPath := flag.String("config", "", "path to YAML config file (omit to configure purely from the environment)")
	verbosity := flag.Int("verbose", 3, "minimum log importance to display (0 = everything)")
	flag.Parse()

	logger.SetMinLoggingLevel(*verbosity)

	// A .env file is optional; real environments set the variables directly.
	if err := godotenv.Load(); err == nil {
		log.Emit(logger.DEBUG, "Loaded environment overrides from .env\n")
	}

	config := internal.MusicBoxConfig{}
	var err error
	if *configPath != "" {
		err = config.LoadFromFile(*configPath)
	} else {
		err = config.LoadFromEnv()
	}
	if err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	box, err := internal.New(config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to construct engine: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := box.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Engine stopped with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Engine stopped\n")
}
