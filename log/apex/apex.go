// Package apex adapts apex/log to swrcache.Logger.
package apex

import (
	"github.com/apex/log"

	"github.com/unkn0wn-root/swrcache"
)

var _ swrcache.Logger = Logger{}

// Logger wraps any apex interface; log.Log is the package default.
type Logger struct{ L log.Interface }

func (a Logger) Debug(msg string, f swrcache.Fields) { a.L.WithFields(log.Fields(f)).Debug(msg) }
func (a Logger) Info(msg string, f swrcache.Fields)  { a.L.WithFields(log.Fields(f)).Info(msg) }
func (a Logger) Warn(msg string, f swrcache.Fields)  { a.L.WithFields(log.Fields(f)).Warn(msg) }
func (a Logger) Error(msg string, f swrcache.Fields) { a.L.WithFields(log.Fields(f)).Error(msg) }
