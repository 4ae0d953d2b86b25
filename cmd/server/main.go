package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/devitechsolutions/vextr-sub000/internal/server"
	"github.com/devitechsolutions/vextr-sub000/pkg/config"
	"github.com/devitechsolutions/vextr-sub000/pkg/logger"
)

const (
	serviceName    = "vextr-sync"
	serviceVersion = "1.0.0"
)

func main() {
	var (
		configPath     = flag.String("config", "", "path to configuration file (yaml or json)")
		generateConfig = flag.String("generate-config", "", "write an example configuration file to the given path and exit")
		showVersion    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", serviceName, serviceVersion)
		return
	}

	if *generateConfig != "" {
		loader := config.NewLoader(config.EnvPrefix)
		if err := loader.WriteExample(*generateConfig, config.Default()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write example config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("example configuration written to %s\n", *generateConfig)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Level:   logger.ParseLogLevel(cfg.Logging.Level),
		Format:  logger.ParseLogFormat(cfg.Logging.Format),
		Service: serviceName,
		Version: serviceVersion,
	})
	logger.SetDefault(log)

	srv, err := server.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize server")
	}

	if err := srv.Run(); err != nil {
		log.WithError(err).Fatal("Server exited with error")
	}
}
