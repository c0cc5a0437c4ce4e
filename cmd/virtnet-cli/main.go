//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/inhies/go-bytesize"
	"github.com/urfave/cli/v3"

	"github.com/virtnet-go/virtnet/logger"
	"github.com/virtnet-go/virtnet/manager"
	"github.com/virtnet-go/virtnet/nsutil"
	"github.com/virtnet-go/virtnet/version"
)

/**
 * Application entry point.
 */
func main() {
	cmd := &cli.Command{
		Name:    "virtnet-cli",
		Usage:   "Build and tear down an ephemeral Linux network topology.",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "topology",
				Aliases:  []string{"t"},
				Usage:    "Path to a topology JSON document",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "Log verbosity (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format (text|json)",
			},
			&cli.StringFlag{
				Name:  "etc-tmpfs-size",
				Usage: "Size a tmpfs over /etc/netns instead of using the root filesystem (e.g. 64MB)",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "virtnet-cli:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	level, err := parseLogLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	format, err := parseLogFormat(c.String("log-format"))
	if err != nil {
		return err
	}
	log := logger.CreateLogger(&logger.LoggerOpts{LogLevel: level, LogFormat: format})

	if size := c.String("etc-tmpfs-size"); size != "" {
		bs, err := bytesize.Parse(size)
		if err != nil {
			return fmt.Errorf("bad --etc-tmpfs-size %q: %w", size, err)
		}
		if err := nsutil.MountEtcTmpfs(uint64(bs)); err != nil {
			log.Warn("could not mount tmpfs over /etc/netns", slog.Any("err", err))
		}
	}

	doc, err := loadTopologyDoc(c.String("topology"))
	if err != nil {
		return err
	}

	m, err := manager.New()
	if err != nil {
		return fmt.Errorf("open manager: %w", err)
	}
	log.Info("scope opened", slog.String("id", m.ID().String()))
	defer func() {
		if err := m.Close(); err != nil {
			log.Error("teardown", slog.Any("err", err))
		}
	}()

	containers, err := build(m, doc)
	if err != nil {
		return fmt.Errorf("build topology: %w", err)
	}
	log.Info("topology built", slog.Int("containers", len(containers)))

	if err := m.UpdateHosts(); err != nil {
		return fmt.Errorf("update hosts: %w", err)
	}
	if err := m.SimpleRoute(); err != nil {
		return fmt.Errorf("install routes: %w", err)
	}

	return runCommand(containers, doc.Run)
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func parseLogFormat(s string) (logger.LogFormat, error) {
	switch s {
	case "text":
		return logger.LogText, nil
	case "json":
		return logger.LogJSON, nil
	default:
		return 0, fmt.Errorf("unknown log format %q", s)
	}
}
