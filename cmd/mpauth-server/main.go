// Command mpauth-server serves the mpauth HTTP API.
//
// Configuration comes from MPAUTH_* environment variables and flags; run with
// -h for the flag list. Without MPAUTH_REDIS_ADDR it starts an in-process
// Redis, which is only suitable for development.
package main

import (
	"os"

	"github.com/MrEthical07/mpauth/internal/server"
)

func main() {
	os.Exit(server.Main(os.Args[1:]))
}
