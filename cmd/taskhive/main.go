// Package main implements the entry point for the taskhive orchestrator,
// which coordinates task and project mutations for the platform's
// collaborating services.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A .env file is a development convenience; absence is normal.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
