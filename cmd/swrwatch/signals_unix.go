//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

func notifyEvents(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
}

func eventFor(sig os.Signal) event {
	switch sig {
	case syscall.SIGUSR1:
		return eventFocus
	case syscall.SIGUSR2:
		return eventReconnect
	case syscall.SIGHUP:
		return eventRefresh
	}
	return eventNone
}
