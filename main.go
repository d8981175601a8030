package main

import (
	"log"

	"github.com/discord2vrc/discord2vrc/cmd"
	"github.com/discord2vrc/discord2vrc/config"
)

func main() {
	log.Printf("discord2vrc %s (%s)", config.Version, config.CommitHash)
	cmd.Execute()
}
