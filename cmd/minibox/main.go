package main

import (
	"os"

	"minibox/internal/cli"
	"minibox/internal/runtime"
)

func main() {
	// The run command re-execs this binary to become the namespace init
	// process. An environment variable marks that path instead of a
	// subcommand to keep the user-facing command namespace clean.
	if os.Getenv(runtime.InitEnvVar) == "1" {
		runtime.RunContainerInit()
		return
	}

	cli.Execute()
}
