package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescp17/noftp/internal/style"
	"github.com/rescp17/noftp/pkg/discovery"
	"github.com/rescp17/noftp/pkg/sender"
	"github.com/rescp17/noftp/pkg/transfer"
)

const discoverTimeout = 10 * time.Second

func newSendCmd(opts *globalOptions) *cobra.Command {
	var to string
	var packetSize int64

	cmd := &cobra.Command{
		Use:   "send <path>...",
		Short: "Send files or directories to a receiver",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			config := *opts.config
			if packetSize > 0 {
				config.PacketSize = packetSize
				if err := config.Validate(); err != nil {
					return err
				}
			}

			addr := to
			if addr == "" {
				svc, err := discoverReceiver(ctx)
				if err != nil {
					return err
				}
				addr = svc.Address()
				fmt.Fprintf(cmd.OutOrStdout(), "Found receiver %s at %s\n", style.HighlightFontStyle.Render(svc.Name), addr)
			}
			return runSend(ctx, cmd, &config, addr, args)
		},
	}

	cmd.Flags().StringVarP(&to, "to", "t", "", "Receiver address (host:port); discovered over mDNS when empty")
	cmd.Flags().Int64Var(&packetSize, "packet-size", 0, "Bytes per chunk connection")
	return cmd
}

func runSend(ctx context.Context, cmd *cobra.Command, config *transfer.TransferConfig, addr string, paths []string) error {
	client := sender.NewClient(config)
	// abort the transfer in flight on interrupt
	stop := context.AfterFunc(ctx, client.Abort)
	defer stop()
	defer client.Close()

	var rows []style.SummaryRow
	var errs []error
	for _, path := range paths {
		results, err := client.SendPath(ctx, addr, path)
		for _, res := range results {
			rows = append(rows, style.SummaryRow{
				File:    res.Job.Source.RelPath,
				Size:    res.Job.Source.Size,
				Chunks:  fmt.Sprintf("%d/%d", res.Progress.ChunksSent, res.Progress.TotalChunks),
				Elapsed: res.Progress.Elapsed,
				Rate:    res.Progress.TransferRate(),
				Err:     res.Err,
			})
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), style.RenderSummary("Sent to "+addr, rows))
	return errors.Join(errs...)
}

func discoverReceiver(ctx context.Context) (discovery.ServiceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()
	svc, err := discovery.FirstService(ctx, &discovery.MDNSAdapter{}, discovery.DefaultServiceType)
	if err != nil {
		return svc, fmt.Errorf("no receiver found, pass --to: %w", err)
	}
	return svc, nil
}
