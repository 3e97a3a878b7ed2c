package main

import (
	"fmt"
	"os"

	"github.com/danmuck/callassist/internal/logging"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "callassist: %v\n", err)
		os.Exit(1)
	}
}
