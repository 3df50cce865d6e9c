package main

import (
	"context"
	"os/signal"
	"syscall"

	campuslink "github.com/campuslink/campuslink/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	app := campuslink.New(ctx, nil)
	app.Start()
}
