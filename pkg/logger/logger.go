package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var (
	mu       sync.Mutex
	minLevel = INFO
	output   = os.Stderr
)

// SetLevel sets the minimum level emitted by the package logger.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func logf(level Level, component, msg string, fields map[string]interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if level < minLevel {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(levelNames[level])
	b.WriteString("] ")
	if component != "" {
		b.WriteString(component)
		b.WriteString(": ")
	}
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	b.WriteByte('\n')
	fmt.Fprint(output, b.String())
}

func Debug(msg string)                   { logf(DEBUG, "", msg, nil) }
func Info(msg string)                    { logf(INFO, "", msg, nil) }
func Warn(msg string)                    { logf(WARN, "", msg, nil) }
func Error(msg string)                   { logf(ERROR, "", msg, nil) }
func DebugC(component, msg string)       { logf(DEBUG, component, msg, nil) }
func InfoC(component, msg string)        { logf(INFO, component, msg, nil) }
func WarnC(component, msg string)        { logf(WARN, component, msg, nil) }
func ErrorC(component, msg string)       { logf(ERROR, component, msg, nil) }

// The *CF variants attach structured fields to the line.

func DebugCF(component, msg string, fields map[string]interface{}) {
	logf(DEBUG, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	logf(INFO, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	logf(WARN, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	logf(ERROR, component, msg, fields)
}
