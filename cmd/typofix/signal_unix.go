//go:build unix

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// notifyTriggers forwards SIGUSR1 to triggers until ctx is done, so a global
// shortcut daemon can start a cycle with `pkill -USR1 typofix`. A signal that
// arrives while a trigger is already pending is dropped.
func notifyTriggers(ctx context.Context, triggers chan<- struct{}) (stop func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-quit:
				return
			case <-sig:
				select {
				case triggers <- struct{}{}:
				default:
					slog.Debug("trigger already pending; SIGUSR1 dropped")
				}
			}
		}
	}()
	return func() {
		signal.Stop(sig)
		close(quit)
		<-done
	}
}
