package main

import (
	"github.com/OFFIS-RIT/graphsync/internal/server"
	"github.com/OFFIS-RIT/graphsync/internal/util"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"
	"github.com/OFFIS-RIT/graphsync/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		JSON:   util.GetEnvBool("LOG_JSON", false),
		Prefix: "server",
	})
	logger.Init(consoleLogger)

	server.Init()
}
