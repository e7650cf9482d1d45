package main

import (
	"os"

	"paperdesk/cmd/paperdesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
