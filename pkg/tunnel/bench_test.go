package tunnel

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/sara-star-quant/securechat/pkg/crypto"
	"github.com/sara-star-quant/securechat/pkg/protocol"
)

func benchmarkHandshake(b *testing.B, kdf crypto.KDFParams) {
	cfg := HandshakeConfig{Variant: protocol.DefaultVariant(), KDF: kdf}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lconn, iconn := net.Pipe()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = RunHandshake(RoleListener, lconn, cfg)
		}()

		if _, err := RunHandshake(RoleInitiator, iconn, cfg); err != nil {
			b.Fatal(err)
		}
		wg.Wait()
		_ = lconn.Close()
		_ = iconn.Close()
	}
}

func BenchmarkHandshakeScrypt(b *testing.B) {
	benchmarkHandshake(b, crypto.DefaultKDFParams())
}

func BenchmarkHandshakeHKDF(b *testing.B) {
	benchmarkHandshake(b, crypto.KDFParams{Algorithm: crypto.KDFHKDF})
}

func BenchmarkSessionSend(b *testing.B) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()
	go func() { _, _ = io.Copy(io.Discard, remote) }()

	sess, err := NewSession(local, RoleInitiator, testKey(), SessionConfig{Variant: protocol.DefaultVariant()})
	if err != nil {
		b.Fatal(err)
	}
	defer sess.Close()

	ctx := context.Background()
	msg := make([]byte, sess.MaxPlaintext())

	b.ResetTimer()
	b.SetBytes(int64(len(msg)))
	for i := 0; i < b.N; i++ {
		if err := sess.Send(ctx, msg); err != nil {
			b.Fatal(err)
		}
	}
}
