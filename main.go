package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	contractx "github.com/tanpawarit/query-router/agent/contract"
	"github.com/tanpawarit/query-router/cmd"
	_ "github.com/tanpawarit/query-router/pkg/logger/autoload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "error:", err)
	if errors.Is(err, contractx.ErrPlanningFailure) {
		os.Exit(2)
	}
	os.Exit(1)
}
