// locate resolves place names from the command line using the same engine
// as the HTTP service.
package main

import (
	"os"

	"github.com/FACorreiaa/go-location-resolver/cmd/locate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
