package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rescp17/noftp/internal/style"
	"github.com/rescp17/noftp/pkg/discovery"
	"github.com/rescp17/noftp/pkg/receiver"
	"github.com/rescp17/noftp/pkg/session"
	"github.com/rescp17/noftp/pkg/transfer"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	settings := receiver.DefaultSettings()
	var controlPort int
	var announce bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive files into the download directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, opts.config, settings, controlPort, announce)
		},
	}

	cmd.Flags().StringVar(&settings.Host, "host", settings.Host, "Address to listen on")
	cmd.Flags().IntVarP(&settings.Port, "port", "p", settings.Port, "Bulk transfer port")
	cmd.Flags().StringVarP(&settings.DownloadPath, "download-dir", "d", settings.DownloadPath, "Directory received files are written to")
	cmd.Flags().IntVar(&controlPort, "control-port", session.DefaultPort, "Session control port, 0 disables it")
	cmd.Flags().BoolVar(&announce, "announce", true, "Announce the receiver over mDNS")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, config *transfer.TransferConfig, settings receiver.Settings, controlPort int, announce bool) error {
	server := receiver.NewServer(settings, config)
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	var control *session.Server
	if controlPort > 0 {
		control = session.NewServer(net.JoinHostPort(settings.Host, strconv.Itoa(controlPort)), config.IdleTimeout)
		if err := control.Start(ctx); err != nil {
			return err
		}
		defer control.Stop()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s on %s, saving to %s\n",
		style.TitleStyle.Render("Receiving"),
		style.HighlightFontStyle.Render(server.Addr().String()),
		settings.DownloadPath)

	g, ctx := errgroup.WithContext(ctx)
	if announce {
		info, err := serviceInfo(settings.Port, controlPort)
		if err != nil {
			return err
		}
		adapter := &discovery.MDNSAdapter{}
		g.Go(func() error {
			// receiving keeps working without multicast
			if err := adapter.Announce(ctx, info); err != nil {
				slog.Warn("mDNS announce failed", "error", err)
			}
			return nil
		})
	}

	results := server.Results()
	g.Go(func() error {
		for {
			select {
			case res := <-results:
				if res.Complete {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", style.SuccessStyle.Render("received"), res.Dest)
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), style.HelpStyle.Render("Shutting down"))
	return nil
}

func serviceInfo(port, controlPort int) (discovery.ServiceInfo, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return discovery.ServiceInfo{}, fmt.Errorf("failed to get hostname: %w", err)
	}
	serviceUUID := uuid.New().String()
	return discovery.ServiceInfo{
		Name:        fmt.Sprintf("%s-%s", hostname, serviceUUID[:8]),
		Type:        discovery.DefaultServiceType,
		Domain:      discovery.DefaultDomain,
		Port:        port,
		ControlPort: controlPort,
		Version:     transfer.DefaultVersion.String(),
	}, nil
}
