// Package securechat provides an encrypted, duplex, line-oriented chat channel
// between two peers over a single TCP stream.
//
// Each connection runs an ephemeral X25519 exchange, derives a 256-bit session
// key with scrypt (or HKDF), and then carries AES-256-GCM frames laid out as
// nonce || tag || ciphertext. Sending and receiving run concurrently. A frame
// that fails authentication is answered with a RESEND or ERROR control signal
// and the session continues.
//
// # Quick Start
//
//	import "github.com/sara-star-quant/securechat/pkg/tunnel"
//
//	// Listener
//	cfg := tunnel.DefaultConfig()
//	l, _ := tunnel.NewListener(cfg)
//	_ = l.Run(ctx, tunnel.NewLineSource(os.Stdin), tunnel.NewWriterSink(os.Stdout, nil))
//
//	// Initiator
//	cfg.Address = "chat.example.net:8888"
//	i, _ := tunnel.NewInitiator(cfg)
//	_ = i.Run(ctx, tunnel.NewLineSource(os.Stdin), tunnel.NewWriterSink(os.Stdout, nil))
//
// The listener binds again after any failure and the initiator reconnects after
// any failure, both with a fixed backoff, until ctx is cancelled.
//
// # Package Structure
//
//   - pkg/crypto: X25519, scrypt/HKDF key derivation, AEAD, self tests
//   - pkg/protocol: frames, control signals, hello messages, unit framing
//   - pkg/tunnel: handshake, session duplex flows, listener and initiator
//   - pkg/metrics: logging, metrics, tracing and health endpoints
//   - internal/constants: protocol constants and defaults
//   - internal/errors: error types for detailed error handling
//   - cmd/securechat: console chat client
//
// # Security Properties
//
//   - Forward secrecy: ephemeral keys generated for each connection
//   - Authenticated encryption: AES-256-GCM, or ChaCha20-Poly1305 when both
//     peers select it
//   - No peer authentication: the exchange is unauthenticated and open to an
//     active man in the middle. Compare session fingerprints out of band.
//   - No replay protection: frames carry no sequence number.
//
// # Testing
//
//	go test ./...                                   # All tests
//	go test -fuzz=FuzzOpen ./pkg/protocol/          # Fuzz tests
//	go test -bench=. ./pkg/tunnel/ ./pkg/protocol/  # Benchmarks
//
// # References
//
//   - RFC 7748: Elliptic Curves for Security
//   - RFC 7914: The scrypt Password-Based Key Derivation Function
//   - NIST SP 800-38D: Galois/Counter Mode
package securechat
