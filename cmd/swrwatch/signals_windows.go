//go:build windows

package main

import "os"

// Windows has no user signals; only interrupt is handled.
func notifyEvents(chan<- os.Signal) {}

func eventFor(os.Signal) event { return eventNone }
