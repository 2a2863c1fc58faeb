// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

// Package log provides the module-scoped leveled logger used across the
// scheduler core, in the shape of log.NewModuleLogger(log.<Module>) used
// throughout the teacher tree this package was learned from.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
)

// Module identifies the subsystem a logger belongs to; used only to tag
// output lines, never to branch behavior.
type Module string

const (
	Tasks        Module = "tasks"
	Distributor  Module = "distributor"
	Balance      Module = "balance"
	Manager      Module = "manager"
	Query        Module = "query"
	Interval     Module = "interval"
	Event        Module = "event"
	Cache        Module = "cache"
	Params       Module = "params"
)

type Level int

const (
	LvlCrit Level = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

var levelNames = map[Level]string{
	LvlCrit:  "CRIT",
	LvlError: "ERROR",
	LvlWarn:  "WARN",
	LvlInfo:  "INFO",
	LvlDebug: "DEBUG",
	LvlTrace: "TRACE",
}

var levelColors = map[Level]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

var (
	mu        sync.Mutex
	out       io.Writer = colorable.NewColorableStdout()
	threshold           = LvlInfo
)

// SetOutput redirects all module loggers; mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetLevel sets the global verbosity threshold.
func SetLevel(lvl Level) {
	mu.Lock()
	defer mu.Unlock()
	threshold = lvl
}

// Logger is a module-scoped leveled logger with key/value pair context.
type Logger struct {
	module Module
}

// NewModuleLogger returns the logger for a given module.
func NewModuleLogger(m Module) *Logger {
	return &Logger{module: m}
}

func (l *Logger) log(lvl Level, msg string, ctx ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if lvl > threshold {
		return
	}
	c := levelColors[lvl]
	site := stack.Caller(2)
	line := fmt.Sprintf("%s[%s] %-5s %-12s %s", time.Now().UTC().Format("15:04:05.000"), fmt.Sprintf("%+v", site), levelNames[lvl], l.module, msg)
	for i := 0; i+1 < len(ctx); i += 2 {
		line += fmt.Sprintf(" %v=%v", ctx[i], ctx[i+1])
	}
	fmt.Fprintln(out, c.Sprint(line))
}

func (l *Logger) Trace(msg string, ctx ...interface{}) { l.log(LvlTrace, msg, ctx...) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.log(LvlDebug, msg, ctx...) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.log(LvlInfo, msg, ctx...) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.log(LvlWarn, msg, ctx...) }
func (l *Logger) Error(msg string, ctx ...interface{}) { l.log(LvlError, msg, ctx...) }
func (l *Logger) Crit(msg string, ctx ...interface{}) {
	l.log(LvlCrit, msg, ctx...)
	os.Exit(1)
}
