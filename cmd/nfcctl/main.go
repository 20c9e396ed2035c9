// Command nfcctl is the D-Bus control-plane client for nfcd.
package main

import (
	"github.com/dantte-lp/nfcd/cmd/nfcctl/commands"
)

func main() {
	commands.Execute()
}
