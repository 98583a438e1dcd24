package main

import (
	"os"
	"trade_guard/cmd/guard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
