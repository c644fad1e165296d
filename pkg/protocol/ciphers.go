package protocol

import (
	"github.com/sara-star-quant/securechat/internal/constants"
	"github.com/sara-star-quant/securechat/pkg/crypto"
)

// allCipherSuites are the suites a standard build offers, preferred first.
var allCipherSuites = []constants.CipherSuite{
	constants.CipherSuiteAES256GCM,
	constants.CipherSuiteChaCha20Poly1305,
}

// SupportedCipherSuites returns the suites this build can run, preferred
// first. A FIPS build keeps only the approved ones.
func SupportedCipherSuites() []constants.CipherSuite {
	out := make([]constants.CipherSuite, 0, len(allCipherSuites))
	for _, cs := range allCipherSuites {
		if !crypto.FIPSMode() || cs.IsFIPSApproved() {
			out = append(out, cs)
		}
	}
	return out
}

// PreferredCipherSuite is the suite used when none is configured.
func PreferredCipherSuite() constants.CipherSuite {
	return SupportedCipherSuites()[0]
}
