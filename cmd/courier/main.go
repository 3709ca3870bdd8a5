package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattjoyce/courier/internal/api"
	"github.com/mattjoyce/courier/internal/channel"
	"github.com/mattjoyce/courier/internal/config"
	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/lock"
	"github.com/mattjoyce/courier/internal/log"
	"github.com/mattjoyce/courier/internal/storage"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "system":
		os.Exit(runSystemNoun(args))
	case "channel":
		os.Exit(runChannelNoun(args))
	case "demo":
		os.Exit(runDemoNoun(args))
	case "version":
		fmt.Printf("courier version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`courier - typed inter-process message bus

Usage:
  courier <noun> <action> [flags]

System Commands:
  system start      Start the bus host (channel database + status API)

Channel Commands:
  channel depth     Show the number of buffered messages on a channel

Demo Commands:
  demo pingpong     Run a two-process ping/pong exchange over one database

General:
  version           Show version information
  help              Show this help message
`)
}

func isHelpToken(s string) bool {
	return s == "help" || s == "--help" || s == "-h"
}

// defaultSender names this process on the wire when config leaves the sender
// blank.
func defaultSender() string {
	host, err := os.Hostname()
	if err != nil {
		host = "local"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

func runSystemNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Fprintln(os.Stderr, "Usage: courier system start [--config path]")
		if len(args) > 0 && isHelpToken(args[0]) {
			return 0
		}
		return 1
	}
	switch args[0] {
	case "start":
		return runSystemStart(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", args[0])
		return 1
	}
}

func runSystemStart(args []string) int {
	fs := flag.NewFlagSet("system start", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("host")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pidlock, err := lock.Acquire(cfg.Channel.Path + ".lock")
	if err != nil {
		logger.Error("failed to acquire host lock", "error", err)
		return 1
	}
	defer func() { _ = pidlock.Release() }()

	db, err := storage.Open(ctx, cfg.Channel.Path)
	if err != nil {
		logger.Error("failed to open channel database", "error", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	ch, err := channel.AttachSQLite(ctx, db, cfg.Channel.Name,
		channel.WithPollInterval(cfg.Channel.PollInterval.Std()))
	if err != nil {
		logger.Error("failed to attach channel", "error", err)
		return 1
	}

	logger.Info("bus host started",
		"channel", cfg.Channel.Name, "path", cfg.Channel.Path, "api", cfg.API.Enabled)

	hub := events.NewHub(256)
	if cfg.API.Enabled {
		srv := api.New(api.Config{
			Listen:      cfg.API.Listen,
			ChannelName: cfg.Channel.Name,
		}, ch, hub, nil)
		if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("status server failed", "error", err)
			return 1
		}
	} else {
		<-ctx.Done()
	}

	logger.Info("bus host stopped")
	return 0
}

func runChannelNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Fprintln(os.Stderr, "Usage: courier channel depth [--config path]")
		if len(args) > 0 && isHelpToken(args[0]) {
			return 0
		}
		return 1
	}
	switch args[0] {
	case "depth":
		return runChannelDepth(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown channel action: %s\n", args[0])
		return 1
	}
}

func runChannelDepth(args []string) int {
	fs := flag.NewFlagSet("channel depth", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.Channel.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	ch, err := channel.AttachSQLite(ctx, db, cfg.Channel.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	depth, err := ch.Depth(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("channel %s: %d buffered message(s)\n", cfg.Channel.Name, depth)
	return 0
}

// loadConfig loads the file when present and falls back to defaults when the
// default path is absent.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil && filepath.Base(path) == "config.yaml" {
		return config.Defaults(), nil
	}
	return config.Load(path)
}
