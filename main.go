package main

import (
	"os"

	"github.com/spf13/viper"
	"github.com/turbot/reshard/cmd"
)

var (
	// populated by goreleaser
	version = "0.0.0-dev"
)

func main() {
	viper.SetDefault("main.version", version)
	os.Exit(cmd.Execute())
}
