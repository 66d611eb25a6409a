// Package main is the entry point for the video downloader service.
package main

import (
	"os"

	"github.com/Yudee-19/video-downloader/cmd/downloader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
