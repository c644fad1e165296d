package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
	"github.com/sara-star-quant/securechat/pkg/crypto"
	"github.com/sara-star-quant/securechat/pkg/protocol"
	"github.com/sara-star-quant/securechat/pkg/tunnel"
	pkgversion "github.com/sara-star-quant/securechat/pkg/version"
)

// options holds every flag shared by listen and connect.
type options struct {
	addr             string
	backoff          time.Duration
	handshakeTimeout time.Duration
	writeTimeout     time.Duration

	cipher  string
	kdf     string
	scryptN int
	scryptR int
	scryptP int

	noSalt        bool
	feedback      string
	framing       string
	awaitFeedback time.Duration

	handshakeRate  float64
	handshakeBurst int

	logLevel  string
	logFormat string
	logFile   string
	obsAddr   string
	tracing   string
}

func getVersion() string {
	if version != "" {
		return version
	}
	return pkgversion.String()
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:          "securechat",
		Short:        "Encrypted two-party console chat",
		SilenceUsage: true,
	}

	defaults := crypto.DefaultKDFParams()
	pf := root.PersistentFlags()
	pf.DurationVar(&opts.backoff, "backoff", constants.DefaultBackoff, "delay before every reconnect or rebind")
	pf.DurationVar(&opts.handshakeTimeout, "handshake-timeout", constants.DefaultHandshakeTimeout, "handshake deadline (0 disables)")
	pf.DurationVar(&opts.writeTimeout, "write-timeout", constants.DefaultWriteTimeout, "per-frame write deadline (0 disables)")
	pf.StringVar(&opts.cipher, "cipher", "aes-gcm", "cipher suite: aes-gcm or chacha20")
	pf.StringVar(&opts.kdf, "kdf", crypto.KDFScrypt.String(), "key derivation: scrypt or hkdf")
	pf.IntVar(&opts.scryptN, "scrypt-n", defaults.N, "scrypt cost parameter N")
	pf.IntVar(&opts.scryptR, "scrypt-r", defaults.R, "scrypt block size r")
	pf.IntVar(&opts.scryptP, "scrypt-p", defaults.P, "scrypt parallelism p")
	pf.BoolVar(&opts.noSalt, "no-salt", false, "omit the salt from the hello and use the fixed salt")
	pf.StringVar(&opts.feedback, "feedback", protocol.FeedbackResend.String(), "signal sent after a frame fails to open: resend or error")
	pf.StringVar(&opts.framing, "framing", protocol.FramingRaw.String(), "unit framing: raw or length-prefixed")
	pf.DurationVar(&opts.awaitFeedback, "await-feedback", 0, "wait this long after each send for a peer control signal")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error, silent")
	pf.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&opts.logFile, "log-file", "", "also append logs to this file")
	pf.StringVar(&opts.obsAddr, "obs-addr", "", "observability server address (metrics, health). Empty disables")
	pf.StringVar(&opts.tracing, "tracing", "none", "tracing mode: none, simple, otel (requires -tags otel)")

	root.AddCommand(listenCmd(opts), connectCmd(opts), versionCmd())
	return root
}

// resolve reads the flags each subcommand defines for itself.
func (o *options) resolve(cmd *cobra.Command) error {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}
	o.addr = addr
	return nil
}

// tunnelConfig turns the flags into a validated tunnel configuration.
func (o *options) tunnelConfig() (tunnel.Config, error) {
	cfg := tunnel.DefaultConfig()
	cfg.Address = o.addr
	cfg.Backoff = o.backoff
	cfg.HandshakeTimeout = o.handshakeTimeout
	cfg.WriteTimeout = o.writeTimeout
	cfg.HandshakeRateLimit = o.handshakeRate
	cfg.HandshakeBurst = o.handshakeBurst

	suite, ok := constants.ParseCipherSuite(o.cipher)
	if !ok {
		return cfg, fmt.Errorf("%w: %q", qerrors.ErrUnsupportedCipherSuite, o.cipher)
	}
	cfg.CipherSuite = suite

	alg, err := crypto.ParseKDF(o.kdf)
	if err != nil {
		return cfg, err
	}
	cfg.KDF = crypto.KDFParams{Algorithm: alg, N: o.scryptN, R: o.scryptR, P: o.scryptP}

	feedback, err := protocol.ParseFeedback(o.feedback)
	if err != nil {
		return cfg, err
	}
	framing, err := protocol.ParseFraming(o.framing)
	if err != nil {
		return cfg, err
	}
	cfg.Variant = protocol.Variant{
		IncludeSalt:   !o.noSalt,
		Feedback:      feedback,
		Framing:       framing,
		AwaitFeedback: o.awaitFeedback,
	}

	return cfg, cfg.Validate()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "securechat version %s\n", getVersion())
			fmt.Fprintf(out, "  %s\n", pkgversion.Full())
			fmt.Fprintf(out, "  commit %s, built %s, fips %t\n", gitCommit, buildTime, crypto.FIPSMode())
		},
	}
}
