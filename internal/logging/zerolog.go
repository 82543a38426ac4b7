// Package logging adapts zerolog to the orchestrator.Logger interface so
// call sites written against the teacher's Logger shape stay untouched.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// ZerologLogger implements orchestrator.Logger on top of a zerolog.Logger.
type ZerologLogger struct {
	l zerolog.Logger
}

// New builds a console-pretty logger when pretty is true, or a JSON logger
// when it is false. Both write to stderr.
func New(pretty bool) *ZerologLogger {
	var l zerolog.Logger
	if pretty {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		l = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return &ZerologLogger{l: l}
}

func fields(e *zerolog.Event, args []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}

func (z *ZerologLogger) Debug(msg string, args ...interface{}) {
	fields(z.l.Debug(), args).Msg(msg)
}

func (z *ZerologLogger) Info(msg string, args ...interface{}) {
	fields(z.l.Info(), args).Msg(msg)
}

func (z *ZerologLogger) Warn(msg string, args ...interface{}) {
	fields(z.l.Warn(), args).Msg(msg)
}

func (z *ZerologLogger) Error(msg string, args ...interface{}) {
	fields(z.l.Error(), args).Msg(msg)
}
