package logsvc

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/member"
)

// RollbarLogger prints to stdout and reports to Rollbar under its component name.
type RollbarLogger struct {
	std    *log.Logger
	client *rollbar.Client

	// the person is client state: setting it and logging must not interleave
	mu sync.Mutex
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(component string, conf *core.Config) *RollbarLogger {
	prefix := strings.ToUpper(component) + " : "
	client := rollbar.New(conf.RollbarToken, conf.Env, conf.Build, conf.Server.Host, "")
	client.SetStackTracer(errors.StackTracer)
	client.SetCustom(map[string]interface{}{"component": component, "app": conf.AppName})
	client.SetEnabled(!conf.Debug)

	return &RollbarLogger{
		std:    log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		client: client,
	}
}

// Close flushes pending reports.
func (l *RollbarLogger) Close() {
	l.client.Wait()
	_ = l.client.Close()
}

// split separates the acting member and the first error from the rest of args.
// Maps are merged into extras. Further errors and other values are added to extras by position.
func split(args []interface{}) (usr *member.User, extras map[string]interface{}, err error) {
	add := func(prefix string, v interface{}) {
		if extras == nil {
			extras = make(map[string]interface{})
		}
		extras[fmt.Sprintf("%s_%d", prefix, len(extras))] = v
	}
	for _, arg := range args {
		switch a := arg.(type) {
		case member.User:
			if usr == nil {
				usr = &a
			}
		case *member.User:
			if usr == nil {
				usr = a
			}
		case map[string]interface{}:
			if extras == nil {
				extras = make(map[string]interface{}, len(a))
			}
			for k, v := range a {
				extras[k] = v
			}
		case error:
			if err == nil {
				err = a
			} else {
				add("error", a.Error())
			}
		default:
			add("arg", a)
		}
	}
	return usr, extras, err
}

func (l *RollbarLogger) log(level, msg string, args []interface{}) {
	usr, extras, err := split(args)

	l.mu.Lock()
	if usr != nil {
		l.client.SetPerson(usr.ID, usr.Name, usr.Email)
	} else {
		l.client.ClearPerson()
	}
	if err != nil {
		report := map[string]interface{}{"message": msg}
		for k, v := range extras {
			report[k] = v
		}
		l.client.ErrorWithExtras(level, err, report)
	} else {
		l.client.MessageWithExtras(level, msg, extras)
	}
	l.mu.Unlock()

	line := fmt.Sprintf("[%s] %s", level, msg)
	if usr != nil {
		line += " (member " + usr.ID + ")"
	}
	if err != nil {
		line += ": " + err.Error()
	}
	l.std.Output(3, line) //nolint:errcheck
	if len(extras) > 0 {
		l.std.Output(3, fmt.Sprintf("%+v", extras)) //nolint:errcheck
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) { l.log(rollbar.DEBUG, msg, args) }
func (l *RollbarLogger) Info(msg string, args ...interface{})  { l.log(rollbar.INFO, msg, args) }
func (l *RollbarLogger) Warn(msg string, args ...interface{})  { l.log(rollbar.WARN, msg, args) }
func (l *RollbarLogger) Error(msg string, args ...interface{}) { l.log(rollbar.ERR, msg, args) }

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	l.Close()
	os.Exit(1)
}
