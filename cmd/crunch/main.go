// Command crunch aggregates the instrument logs of a directory into a
// per-channel result table and checks it against a tolerance configuration.
//
//	crunch --in ./captures --select VT2816A_m2V5_R10V.txt=Voltage
//	crunch --in ./captures --template ./captures/test_config.json
//	crunch --in ./captures --format json --watch
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
