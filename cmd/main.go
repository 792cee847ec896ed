package main

import (
	"os"

	"github.com/soundprediction/episodic/cmd/episodic"
)

func main() {
	if err := episodic.Execute(); err != nil {
		os.Exit(1)
	}
}
