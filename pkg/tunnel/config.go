package tunnel

import (
	"fmt"
	"net"
	"time"

	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
	"github.com/sara-star-quant/securechat/pkg/crypto"
	"github.com/sara-star-quant/securechat/pkg/protocol"
)

// Config holds configuration for the connection managers.
type Config struct {
	// Address is the listen address (listener) or peer address (initiator).
	Address string

	// Backoff is the fixed delay before every retry. There is no cap on
	// attempts and no jitter.
	Backoff time.Duration

	// Variant holds the wire options both peers must share.
	Variant protocol.Variant

	// CipherSuite selects the frame AEAD. Both peers must agree.
	CipherSuite constants.CipherSuite

	// KDF selects the session key derivation. Both peers must agree.
	KDF crypto.KDFParams

	// HandshakeTimeout bounds one handshake. Zero disables it.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds one unit write. Zero disables it.
	WriteTimeout time.Duration

	// HandshakeRateLimit is the maximum number of inbound handshakes per
	// second. 0 means no limit. Listener only.
	HandshakeRateLimit float64

	// HandshakeBurst is the maximum burst of handshakes allowed.
	HandshakeBurst int

	// Observer is a shared observer for all sessions (ignored if ObserverFactory is set).
	Observer Observer

	// ObserverFactory builds a per-connection observer (takes precedence over Observer).
	ObserverFactory ObserverFactory

	// LifecycleObserver receives state transitions and retries.
	LifecycleObserver LifecycleObserver

	// RateLimitObserver receives notifications when rate limits are hit.
	RateLimitObserver RateLimitObserver

	// Dialer and ListenConfig override the network setup.
	Dialer       *net.Dialer
	ListenConfig *net.ListenConfig
}

// DefaultConfig returns the deployed protocol's settings.
func DefaultConfig() Config {
	return Config{
		Address:          constants.DefaultListenAddress,
		Backoff:          constants.DefaultBackoff,
		Variant:          protocol.DefaultVariant(),
		CipherSuite:      protocol.PreferredCipherSuite(),
		KDF:              crypto.DefaultKDFParams(),
		HandshakeTimeout: constants.DefaultHandshakeTimeout,
		WriteTimeout:     constants.DefaultWriteTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: empty address", qerrors.ErrInvalidState)
	}
	if c.Backoff < 0 || c.HandshakeTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("%w: negative duration", qerrors.ErrInvalidState)
	}
	if err := c.Variant.Validate(); err != nil {
		return err
	}
	if err := protocol.CheckCipherSuite(c.CipherSuite); err != nil {
		return err
	}
	return c.withDefaults().KDF.Validate()
}

func (c Config) withDefaults() Config {
	if c.Backoff == 0 {
		c.Backoff = constants.DefaultBackoff
	}
	if c.KDF.Algorithm == crypto.KDFScrypt && c.KDF.N == 0 {
		c.KDF = crypto.DefaultKDFParams()
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	if c.ListenConfig == nil {
		c.ListenConfig = &net.ListenConfig{}
	}
	return c
}

func (c Config) handshakeConfig() HandshakeConfig {
	return HandshakeConfig{
		Variant: c.Variant,
		KDF:     c.KDF,
		Timeout: c.HandshakeTimeout,
	}
}

func (c Config) sessionConfig(obs Observer) SessionConfig {
	return SessionConfig{
		CipherSuite:  c.CipherSuite,
		Variant:      c.Variant,
		KDF:          c.KDF.Algorithm,
		WriteTimeout: c.WriteTimeout,
		Observer:     obs,
	}
}
