package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/rodoku-audio/rodoku-tools/wavestk"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(env.NewRepository(), log.NewLogger(), wavestk.DefaultUploader{}, os.Stdout)
	code := app.run(ctx, os.Args[1:])

	stop()
	os.Exit(code)
}
