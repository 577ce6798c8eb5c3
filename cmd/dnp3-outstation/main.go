package main

import (
	"os"

	"k8s.io/component-base/logs"
	_ "k8s.io/component-base/logs/json/register"

	"avaneesh/dnp3-outstation/cmd/dnp3-outstation/app"
)

func main() {
	cmd := app.NewOutstationCmd()
	logs.InitLogs()
	defer logs.FlushLogs()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
