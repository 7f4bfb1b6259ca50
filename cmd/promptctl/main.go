package main

import (
	"os"

	"github.com/noah-isme/promptgrade-api/internal/config"
)

func main() {
	if err := newRootCmd(config.Load).Execute(); err != nil {
		os.Exit(1)
	}
}
