package logger

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/x/ansi"
	"github.com/go-resty/resty/v2"
	"github.com/muesli/termenv"
	"github.com/spf13/afero"
)

const (
	DefaultWebhookHost = "127.0.0.1"
	DefaultWebhookPort = 9003

	sinkTimeFormat = "2006-01-02 15:04:05.000"
	webhookTimeout = 5 * time.Second
)

// LogHandler receives every message that passes the console level.
type LogHandler func(level LogLevel, message string)

// SinkOptions configures the process-wide log sink.
type SinkOptions struct {
	// LogLevel is "level" or "consoleLevel:fileLevel".
	LogLevel string
	// LogFile receives plain-text output. An existing file is replaced.
	LogFile string
	// Webhook is "host", "host:port" or ":port"; messages are POSTed as JSON.
	Webhook       string
	NoColors      bool
	Timestamp     bool
	LocalTimezone bool
	Handler       LogHandler

	// Console defaults to os.Stdout.
	Console io.Writer
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// HTTPClient defaults to a resty client with a short timeout.
	HTTPClient *resty.Client
}

// Sink fans each message out to the console, an optional file and an
// optional webhook, each filtered by its own level.
type Sink struct {
	console *charmlog.Logger
	outputs []*charmlog.Logger
	closers []io.Closer
	handler LogHandler
	level   LogLevel
}

var (
	sinkMu     sync.Mutex
	activeSink *Sink
)

// ParseLevelPair splits "console:file" into its two levels. A single level
// applies to both.
func ParseLevelPair(spec string) (console LogLevel, file LogLevel) {
	if strings.TrimSpace(spec) == "" {
		return InfoLevel, InfoLevel
	}
	consoleName, fileName, found := strings.Cut(spec, ":")
	console = ParseLevel(consoleName)
	if !found || fileName == "" {
		return console, console
	}
	return console, ParseLevel(fileName)
}

// NewSink builds a Sink. A file or webhook that cannot be set up is reported
// on the console and skipped.
func NewSink(opts SinkOptions) (*Sink, error) {
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	consoleLevel, fileLevel := ParseLevelPair(opts.LogLevel)
	timeFn := charmlog.NowUTC
	if opts.LocalTimezone {
		timeFn = func(t time.Time) time.Time { return t.Local() }
	}

	console := charmlog.NewWithOptions(opts.Console, charmlog.Options{
		ReportTimestamp: opts.Timestamp,
		TimeFormat:      sinkTimeFormat,
		TimeFunction:    timeFn,
		Level:           consoleLevel.ToCharmlogLevel(),
	})
	console.SetStyles(getDefaultStyles())
	if opts.NoColors {
		console.SetColorProfile(termenv.Ascii)
	}
	s := &Sink{
		console: console,
		outputs: []*charmlog.Logger{console},
		handler: opts.Handler,
		level:   consoleLevel,
	}

	if opts.LogFile != "" {
		file, err := openLogFile(opts.Fs, opts.LogFile)
		if err != nil {
			console.Warn("Could not open the log file, logging to console only", "path", opts.LogFile, "error", err)
		} else {
			s.closers = append(s.closers, file)
			s.outputs = append(s.outputs, charmlog.NewWithOptions(&stripWriter{w: file}, charmlog.Options{
				ReportTimestamp: true,
				TimeFormat:      sinkTimeFormat,
				TimeFunction:    timeFn,
				Level:           fileLevel.ToCharmlogLevel(),
				Formatter:       charmlog.TextFormatter,
			}))
		}
	}

	if opts.Webhook != "" {
		url, err := WebhookURL(opts.Webhook)
		if err != nil {
			console.Warn("Ignoring invalid webhook address", "webhook", opts.Webhook, "error", err)
		} else {
			client := opts.HTTPClient
			if client == nil {
				client = resty.New().SetTimeout(webhookTimeout)
			}
			s.outputs = append(s.outputs, charmlog.NewWithOptions(&webhookWriter{client: client, url: url}, charmlog.Options{
				ReportTimestamp: true,
				TimeFunction:    timeFn,
				Level:           fileLevel.ToCharmlogLevel(),
				Formatter:       charmlog.JSONFormatter,
			}))
		}
	}
	return s, nil
}

func openLogFile(fs afero.Fs, path string) (afero.File, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := fs.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove previous log file: %w", err)
		}
	}
	return fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// WebhookURL resolves a webhook address to the URL messages are posted to.
func WebhookURL(address string) (string, error) {
	host, port := address, ""
	if h, p, err := net.SplitHostPort(address); err == nil {
		host, port = h, p
	}
	if host == "" {
		host = DefaultWebhookHost
	}
	n := DefaultWebhookPort
	if port != "" {
		parsed, err := strconv.Atoi(port)
		if err != nil || parsed < 1 || parsed > 65535 {
			return "", fmt.Errorf("invalid webhook port %q", port)
		}
		n = parsed
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(n)) + "/", nil
}

func (s *Sink) log(level LogLevel, msg string, keyvals ...any) {
	for _, out := range s.outputs {
		out.Log(level.ToCharmlogLevel(), msg, keyvals...)
	}
	if s.handler != nil && level.ToCharmlogLevel() >= s.level.ToCharmlogLevel() {
		s.handler(level, msg)
	}
}

func (s *Sink) Debug(msg string, keyvals ...any) { s.log(DebugLevel, msg, keyvals...) }
func (s *Sink) Info(msg string, keyvals ...any)  { s.log(InfoLevel, msg, keyvals...) }
func (s *Sink) Warn(msg string, keyvals ...any)  { s.log(WarnLevel, msg, keyvals...) }
func (s *Sink) Error(msg string, keyvals ...any) { s.log(ErrorLevel, msg, keyvals...) }

// With returns a Sink sharing the same outputs with extra fields attached.
func (s *Sink) With(keyvals ...any) Logger {
	outputs := make([]*charmlog.Logger, len(s.outputs))
	for i, out := range s.outputs {
		outputs[i] = out.With(keyvals...)
	}
	return &Sink{console: outputs[0], outputs: outputs, handler: s.handler, level: s.level}
}

// Close releases the log file, if any.
func (s *Sink) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// InitSink replaces any active sink and installs the new one as the
// default logger.
func InitSink(opts SinkOptions) (*Sink, error) {
	ClearSink()
	s, err := NewSink(opts)
	if err != nil {
		return nil, err
	}
	sinkMu.Lock()
	activeSink = s
	sinkMu.Unlock()
	SetDefault(s)
	return s, nil
}

// ClearSink closes the active sink and restores a plain console logger.
func ClearSink() {
	sinkMu.Lock()
	s := activeSink
	activeSink = nil
	sinkMu.Unlock()
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		s.console.Warn("Failed to close log outputs", "error", err)
	}
	SetDefault(NewLogger(nil))
}

// stripWriter removes ANSI escape sequences before writing.
type stripWriter struct {
	w io.Writer
}

func (s *stripWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(s.w, ansi.Strip(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// webhookWriter posts each formatted record to an HTTP listener.
type webhookWriter struct {
	client *resty.Client
	url    string
}

func (w *webhookWriter) Write(p []byte) (int, error) {
	resp, err := w.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(ansi.Strip(string(p))).
		Post(w.url)
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("webhook responded with %s", resp.Status())
	}
	return len(p), nil
}
