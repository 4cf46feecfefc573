package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescp17/noftp/internal/style"
	"github.com/rescp17/noftp/internal/util"
	"github.com/rescp17/noftp/pkg/discovery"
	"github.com/rescp17/noftp/pkg/session"
)

func newHandshakeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "handshake <host:port>",
		Short: "Open and end a session on a receiver's control port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if opts.config.DialTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.config.DialTimeout)
				defer cancel()
			}

			id, err := session.Handshake(ctx, args[0], opts.config.IdleTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s session %s\n", style.SuccessStyle.Render("ok"), id)
			return nil
		},
	}
}

func newDiscoverCmd(opts *globalOptions) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List receivers announced on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			var last []discovery.ServiceInfo
			for res := range (&discovery.MDNSAdapter{}).Discover(ctx, discovery.DefaultServiceType) {
				if res.Error != nil {
					return res.Error
				}
				last = res.Services
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, style.TitleStyle.Render(fmt.Sprintf("%d receivers", len(last))))
			for _, svc := range last {
				control := "-"
				if svc.ControlPort > 0 && svc.Addr != nil {
					control = net.JoinHostPort(svc.Addr.String(), strconv.Itoa(svc.ControlPort))
				}
				fmt.Fprintf(out, "%s %s %s\n",
					util.PadRight(svc.Name, 32),
					util.PadRight(svc.Address(), 24),
					style.HelpStyle.Render(control))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 3*time.Second, "How long to browse")
	return cmd
}
