// Command templar verifies project templates by generating them into
// isolated workspaces and exercising the result.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	loadDotEnv()
	Execute()
}

func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}
