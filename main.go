// rawwebapi/main.go
package main

import (
	"os"

	"rawwebapi/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
