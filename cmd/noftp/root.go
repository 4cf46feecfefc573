package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	dnssdlog "github.com/brutella/dnssd/log"
	"github.com/spf13/cobra"

	"github.com/rescp17/noftp/pkg/transfer"
)

type globalOptions struct {
	configPath string
	logLevel   string
	logFile    string

	config  *transfer.TransferConfig
	logSink io.Closer
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "noftp",
		Short:         "Send files and directories to a receiver on the local network",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logSink != nil {
				_ = opts.logSink.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Transfer config file (JSON)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Write logs to this file instead of stderr")

	cmd.AddCommand(newServeCmd(opts), newSendCmd(opts), newHandshakeCmd(opts), newDiscoverCmd(opts))
	return cmd
}

func (o *globalOptions) setup(stderr io.Writer) error {
	level, err := parseLevel(o.logLevel)
	if err != nil {
		return err
	}

	out := stderr
	if o.logFile != "" {
		f, err := os.OpenFile(o.logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out, o.logSink = f, f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))

	// remove dnssd logging
	dnssdlog.Info.SetOutput(io.Discard)
	dnssdlog.Debug.SetOutput(io.Discard)

	if o.configPath == "" {
		o.config = transfer.DefaultTransferConfig()
		return nil
	}
	o.config, err = transfer.LoadTransferConfig(o.configPath)
	return err
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
