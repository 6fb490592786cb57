package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

func (lv LogLevel) String() string {
	if name, ok := levelNames[lv]; ok {
		return name
	}
	return "INFO"
}

// ParseLevel accepts DEBUG, INFO, WARN, ERROR or FATAL in any case.
func ParseLevel(name string) (LogLevel, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for lv, n := range levelNames {
		if n == name {
			return lv, nil
		}
	}
	return INFO, fmt.Errorf("unknown log level %q", name)
}

type palette struct {
	level    *color.Color
	category *color.Color
}

var palettes = map[LogLevel]palette{
	DEBUG: {color.New(color.FgCyan), color.New(color.FgCyan, color.Bold)},
	INFO:  {color.New(color.FgGreen), color.New(color.FgGreen, color.Bold)},
	WARN:  {color.New(color.FgYellow), color.New(color.FgYellow, color.Bold)},
	ERROR: {color.New(color.FgRed, color.Bold), color.New(color.FgRed, color.Bold)},
	FATAL: {color.New(color.FgRed, color.Bold), color.New(color.FgRed, color.Bold)},
}

var (
	timeColor = color.New(color.FgBlue)
	fileColor = color.New(color.FgMagenta)
)

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// Logger writes colored lines to the terminal and JSON lines to a file per
// UTC day under dir. The file changes over on the first write of a new day.
type Logger struct {
	mu       sync.Mutex
	terminal io.Writer
	dir      string
	day      string
	logFile  *os.File
	minLevel LogLevel
	now      func() time.Time
}

func NewLoggerWithDir(dir string) *Logger {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatal("Failed to create logs directory:", err)
	}

	logger := &Logger{
		terminal: color.Output,
		dir:      dir,
		minLevel: DEBUG,
		now:      time.Now,
	}
	if err := logger.openDay(logger.now().UTC().Format("2006-01-02")); err != nil {
		log.Fatal("Failed to create log file:", err)
	}

	logger.Info("LOGGER", fmt.Sprintf("Log file: %s", logger.logFile.Name()))
	return logger
}

// NewNopLogger discards everything. Used by tests and one-shot tools.
func NewNopLogger() *Logger {
	return &Logger{terminal: io.Discard, minLevel: FATAL, now: time.Now}
}

// SetLevel drops entries below the named level. Fatal entries are always
// written.
func (l *Logger) SetLevel(name string) error {
	lv, err := ParseLevel(name)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.minLevel = lv
	l.mu.Unlock()
	return nil
}

// openDay must be called with mu held (or before the logger is shared).
func (l *Logger) openDay(day string) error {
	name := filepath.Join(l.dir, fmt.Sprintf("fest-engine-%s.log", day))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	if l.logFile != nil {
		l.logFile.Close()
	}
	l.logFile = f
	l.day = day
	return nil
}

func (l *Logger) log(level LogLevel, category, message string) {
	if l == nil {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	now := l.now().UTC()
	entry := LogEntry{
		Timestamp: now.Format("2006-01-02T15:04:05.000Z"),
		Level:     level.String(),
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	fmt.Fprint(l.terminal, formatTerminalOutput(level, entry))

	if l.logFile == nil {
		return
	}
	if day := now.Format("2006-01-02"); day != l.day {
		if err := l.openDay(day); err != nil {
			fmt.Fprintf(l.terminal, "log file rotation failed: %v\n", err)
		}
	}
	jsonBytes, _ := json.Marshal(entry)
	l.logFile.Write(append(jsonBytes, '\n'))
}

func formatTerminalOutput(level LogLevel, entry LogEntry) string {
	p, ok := palettes[level]
	if !ok {
		p = palettes[INFO]
	}

	out := fmt.Sprintf("%s %s %s %s",
		timeColor.Sprint(entry.Timestamp[11:19]),
		p.level.Sprintf("%-5s", entry.Level),
		p.category.Sprintf("[%-12s]", entry.Category),
		entry.Message)
	if entry.File != "" && entry.Line > 0 {
		out += fileColor.Sprintf(" (%s:%d)", entry.File, entry.Line)
	}
	return out + "\n"
}

func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	os.Exit(1)
}

// Specialized logging methods for different components
func (l *Logger) LogEvent(action, eventID, message string) {
	l.Info("EVENT", fmt.Sprintf("[%s] %s - %s", action, eventID, message))
}

func (l *Logger) LogRegistration(action, registrationID, message string) {
	l.Info("REGISTRATION", fmt.Sprintf("[%s] %s - %s", action, registrationID, message))
}

func (l *Logger) LogAttendance(action, ticketID, message string) {
	l.Info("ATTENDANCE", fmt.Sprintf("[%s] %s - %s", action, ticketID, message))
}

func (l *Logger) LogScheduler(job, message string) {
	l.Info("SCHEDULER", fmt.Sprintf("[%s] %s", job, message))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.Info("API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.Info("KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.Info("DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.Warn("SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l == nil || l.logFile == nil {
		return
	}
	l.Info("LOGGER", "Closing log file")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logFile.Close()
	l.logFile = nil
}
