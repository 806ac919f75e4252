package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"docuquery/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(func(ctx context.Context) (processor, func() error, error) {
		a, err := bootstrap.New(ctx, bootstrap.WithoutQueue())
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap failed: %w", err)
		}
		return a.Processor, a.Close, nil
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
