//go:build !unix

package main

import "context"

// notifyTriggers is a no-op where SIGUSR1 does not exist. Use POST /trigger.
func notifyTriggers(context.Context, chan<- struct{}) (stop func()) {
	return func() {}
}
