package main

import (
	"os"

	"github.com/wonny/stockfusion/cmd/stockfusion/commands"
)

// main is the entry point for the stockfusion CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/stockfusion [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
