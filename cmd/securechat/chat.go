package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sara-star-quant/securechat/internal/constants"
	"github.com/sara-star-quant/securechat/pkg/metrics"
	"github.com/sara-star-quant/securechat/pkg/tunnel"
)

// manager is the part of Listener and Initiator the commands use.
type manager interface {
	Run(ctx context.Context, src tunnel.Source, sink tunnel.Sink) error
	State() tunnel.ManagerState
}

func listenCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Wait for a peer and chat with it",
		Long: `Listen for one peer at a time. When the peer leaves or a handshake fails
the listener goes back to accepting. Lines read from stdin are sent to the
current peer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, func(cfg tunnel.Config, ob *observability) (manager, error) {
				l, err := tunnel.NewListener(cfg)
				if err != nil {
					return nil, err
				}
				go func() {
					select {
					case <-l.Ready():
						ob.logger.Info("listening", metrics.Fields{"addr": l.Addr().String()})
					case <-cmd.Context().Done():
					}
				}()
				return l, nil
			})
		},
	}
	cmd.Flags().String("addr", constants.DefaultListenAddress, "address to listen on")
	cmd.Flags().Float64Var(&opts.handshakeRate, "handshake-rate", 0, "maximum inbound handshakes per second (0 disables)")
	cmd.Flags().IntVar(&opts.handshakeBurst, "handshake-burst", 5, "handshake burst size")
	return cmd
}

func connectCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a listening peer and chat with it",
		Long: `Connect to the peer, reconnecting after every failure or closed session.
Lines read from stdin are sent to the peer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, func(cfg tunnel.Config, _ *observability) (manager, error) {
				return tunnel.NewInitiator(cfg)
			})
		},
	}
	cmd.Flags().String("addr", constants.DefaultPeerAddress, "peer address")
	return cmd
}

// runChat wires observability, stdin and stdout to a connection manager and
// runs it until interrupted.
func runChat(cmd *cobra.Command, opts *options, build func(tunnel.Config, *observability) (manager, error)) error {
	if err := opts.resolve(cmd); err != nil {
		return err
	}
	cfg, err := opts.tunnelConfig()
	if err != nil {
		return err
	}

	ob, err := setupObservability(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer ob.close()

	if err := ob.checkSelfTests(); err != nil {
		return err
	}
	ob.wire(&cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	m, err := build(cfg, ob)
	if err != nil {
		return err
	}

	ob.logger.Info("starting", metrics.Fields{
		"version": getVersion(),
		"addr":    cfg.Address,
		"cipher":  cfg.CipherSuite.String(),
		"kdf":     cfg.KDF.Algorithm.String(),
		"framing": cfg.Variant.Framing.String(),
	})

	src := tunnel.NewLineSource(cmd.InOrStdin())
	sink := tunnel.NewWriterSink(cmd.OutOrStdout(), nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Run(gctx, src, sink)
	})
	if opts.obsAddr != "" {
		g.Go(func() error {
			return ob.serve(gctx, opts.obsAddr, m.State)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		ob.logger.Info("shutting down")
		return nil
	}
	return err
}
