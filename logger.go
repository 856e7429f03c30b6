package evmvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strconv"
	"sync"
	"text/template"
	"time"
)

// Logger prints leveled log lines through a text/template-formatted
// header, kept close to the teacher's Logger (logger.go) — same buffer
// pool, same template-then-splice-message trick for both text and JSON
// headers — generalized to stand alone from a parent Air/Server struct.
type Logger struct {
	appName string
	format  string
	enabled bool

	template   *template.Template
	bufferPool *sync.Pool
	mutex      sync.Mutex
	levels     []string

	Output io.Writer
}

type loggerLevel uint8

const (
	lvlDebug loggerLevel = iota
	lvlInfo
	lvlWarn
	lvlError
	lvlFatal
)

// NewLogger returns a Logger for appName, enabled by default, writing to
// os.Stdout with the teacher's default JSON line format.
func NewLogger(appName string) *Logger {
	return &Logger{
		appName: appName,
		format: `{"app_name":"{{.app_name}}","time":"{{.time_rfc3339}}",` +
			`"level":"{{.level}}","file":"{{.short_file}}","line":"{{.line}}"}`,
		enabled: true,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 256))
			},
		},
		levels: []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"},
		Output: os.Stdout,
	}
}

// SetEnabled toggles logging output.
func (l *Logger) SetEnabled(v bool) { l.enabled = v }

// SetFormat sets the log-line format string (air.go's LogFormat
// equivalent). It is parsed as a text/template over the keys app_name,
// time_rfc3339, level, short_file, long_file and line.
func (l *Logger) SetFormat(format string) {
	l.format = format
	l.template = nil
}

func (l *Logger) Print(i ...interface{}) { fmt.Fprintln(l.Output, i...) }

func (l *Logger) Printf(format string, args ...interface{}) {
	fmt.Fprintf(l.Output, format+"\n", args...)
}

func (l *Logger) Printj(m map[string]interface{}) {
	json.NewEncoder(l.Output).Encode(m)
}

func (l *Logger) Debug(i ...interface{})                       { l.log(lvlDebug, "", i...) }
func (l *Logger) Debugf(format string, args ...interface{})    { l.log(lvlDebug, format, args...) }
func (l *Logger) Debugj(m map[string]interface{})              { l.log(lvlDebug, "json", m) }
func (l *Logger) Info(i ...interface{})                        { l.log(lvlInfo, "", i...) }
func (l *Logger) Infof(format string, args ...interface{})     { l.log(lvlInfo, format, args...) }
func (l *Logger) Infoj(m map[string]interface{})               { l.log(lvlInfo, "json", m) }
func (l *Logger) Warn(i ...interface{})                        { l.log(lvlWarn, "", i...) }
func (l *Logger) Warnf(format string, args ...interface{})     { l.log(lvlWarn, format, args...) }
func (l *Logger) Warnj(m map[string]interface{})               { l.log(lvlWarn, "json", m) }
func (l *Logger) Error(i ...interface{})                       { l.log(lvlError, "", i...) }
func (l *Logger) Errorf(format string, args ...interface{})    { l.log(lvlError, format, args...) }
func (l *Logger) Errorj(m map[string]interface{})              { l.log(lvlError, "json", m) }

func (l *Logger) Fatal(i ...interface{}) {
	l.log(lvlFatal, "", i...)
	os.Exit(1)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(lvlFatal, format, args...)
	os.Exit(1)
}

func (l *Logger) log(lvl loggerLevel, format string, args ...interface{}) {
	if !l.enabled {
		return
	}
	if l.template == nil {
		l.template = template.Must(template.New("logger").Parse(l.format))
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	buf := l.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		l.bufferPool.Put(buf)
	}()

	message := ""
	switch {
	case format == "":
		message = fmt.Sprint(args...)
	case format == "json":
		b, _ := json.Marshal(args[0])
		message = string(b)
	default:
		message = fmt.Sprintf(format, args...)
	}

	_, file, line, _ := runtime.Caller(3)

	data := map[string]interface{}{
		"app_name":   l.appName,
		"time_rfc3339": time.Now().Format(time.RFC3339),
		"level":      l.levels[lvl],
		"short_file": path.Base(file),
		"long_file":  file,
		"line":       strconv.Itoa(line),
	}

	if err := l.template.Execute(buf, data); err != nil {
		return
	}

	s := buf.String()
	if i := buf.Len() - 1; i >= 0 && s[i] == '}' {
		buf.Truncate(i)
		buf.WriteByte(',')
		if format == "json" {
			buf.WriteString(message[1:])
		} else {
			buf.WriteString(`"message":"`)
			buf.WriteString(message)
			buf.WriteString(`"}`)
		}
	} else {
		buf.WriteByte(' ')
		buf.WriteString(message)
	}
	buf.WriteByte('\n')
	l.Output.Write(buf.Bytes())
}
