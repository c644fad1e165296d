// Command securechat is a console chat over an encrypted TCP channel.
//
// One peer listens and the other connects. Lines typed on stdin are sent as
// messages and received messages are printed with their index.
package main

import "os"

// Stamped by the release build with -ldflags "-X main.version=...".
var (
	version   string
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCmd(&options{}).Execute(); err != nil {
		os.Exit(1)
	}
}
