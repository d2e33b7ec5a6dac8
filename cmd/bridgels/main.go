package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/bridgels/bridgels/internal/server"
)

var appVersion = "dev"

func main() {
	var (
		showVersion bool
		logLevel    string
		configPath  string
	)

	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.StringVar(&logLevel, "log-level", "warning", "log level: debug, info, warning, error")
	flag.StringVar(&configPath, "config", "", "path to the bridgels configuration file")
	flag.Parse()

	if showVersion {
		fmt.Printf("bridgels %s\n", appVersion)
		os.Exit(0)
	}

	if err := server.Run(logLevel, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "bridgels: %v\n", err)
		os.Exit(1)
	}
}
