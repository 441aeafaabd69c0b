package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// globalFlags are accepted by every subcommand.
type globalFlags struct {
	ConfigPath string
	LogLevel   string
	Debug      bool
}

func addGlobalFlags(fs *flag.FlagSet) *globalFlags {
	g := &globalFlags{}
	fs.StringVar(&g.ConfigPath, "config",
		getEnv("CHANNELS_CONFIG", ""),
		"Path to a TOML or YAML configuration file (env: CHANNELS_CONFIG)")
	fs.StringVar(&g.LogLevel, "log-level",
		getEnv("CHANNELS_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error; overrides log.level (env: CHANNELS_LOG_LEVEL)")
	fs.BoolVar(&g.Debug, "debug",
		getEnvBool("CHANNELS_DEBUG", false),
		"Debug logging with the development encoder (env: CHANNELS_DEBUG)")
	return g
}

// nameList collects -name flags; each occurrence may hold a comma separated list.
type nameList []string

func (n *nameList) String() string {
	return strings.Join(*n, ",")
}

func (n *nameList) Set(v string) error {
	for _, name := range strings.Split(v, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*n = append(*n, name)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `channels - announce, discover and talk to channel services

Usage:
  channels <command> [flags]

Commands:
  serve     run a channel service until interrupted
  discover  list announced channel services
  send      discover a channel and submit one request
  probe     discover a channel and print its status

Run 'channels <command> -h' for the flags of a command.
`)
}
