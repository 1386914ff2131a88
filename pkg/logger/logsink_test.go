package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelPair(t *testing.T) {
	t.Run("Should apply a single level to both outputs", func(t *testing.T) {
		console, file := ParseLevelPair("warn")
		assert.Equal(t, WarnLevel, console)
		assert.Equal(t, WarnLevel, file)
	})

	t.Run("Should split console and file levels", func(t *testing.T) {
		console, file := ParseLevelPair("info:debug")
		assert.Equal(t, InfoLevel, console)
		assert.Equal(t, DebugLevel, file)
	})

	t.Run("Should default to info when empty", func(t *testing.T) {
		console, file := ParseLevelPair("")
		assert.Equal(t, InfoLevel, console)
		assert.Equal(t, InfoLevel, file)
	})
}

func TestWebhookURL(t *testing.T) {
	t.Run("Should fill in the default host and port", func(t *testing.T) {
		url, err := WebhookURL("localhost")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9003/", url)

		url, err = WebhookURL(":1234")
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:1234/", url)
	})

	t.Run("Should reject an out of range port", func(t *testing.T) {
		_, err := WebhookURL("localhost:99999")
		assert.Error(t, err)
	})
}

func TestNewSink(t *testing.T) {
	t.Run("Should filter console output by the console level", func(t *testing.T) {
		var buf bytes.Buffer
		sink, err := NewSink(SinkOptions{LogLevel: "warn", Console: &buf, NoColors: true})
		require.NoError(t, err)
		sink.Info("hidden")
		sink.Warn("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("Should replace an existing log file and strip ANSI sequences", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/var/log/hub.log", []byte("stale contents\n"), 0o644))

		sink, err := NewSink(SinkOptions{
			LogLevel: "error:debug",
			LogFile:  "/var/log/hub.log",
			Console:  io.Discard,
			Fs:       fs,
		})
		require.NoError(t, err)
		sink.Debug("\x1b[31mcolored\x1b[0m message", "driver", "fake")
		require.NoError(t, sink.Close())

		data, err := afero.ReadFile(fs, "/var/log/hub.log")
		require.NoError(t, err)
		assert.NotContains(t, string(data), "stale contents")
		assert.Contains(t, string(data), "colored message")
		assert.Contains(t, string(data), "driver=fake")
		assert.NotContains(t, string(data), "\x1b[")
	})

	t.Run("Should post JSON records to the webhook", func(t *testing.T) {
		var (
			mu      sync.Mutex
			records []map[string]any
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var rec map[string]any
			if err := json.NewDecoder(r.Body).Decode(&rec); err == nil {
				mu.Lock()
				records = append(records, rec)
				mu.Unlock()
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		sink, err := NewSink(SinkOptions{
			LogLevel:   "info",
			Webhook:    srv.Listener.Addr().String(),
			Console:    io.Discard,
			HTTPClient: resty.New(),
		})
		require.NoError(t, err)
		sink.Debug("below the level")
		sink.Info("session created", "sessionId", "abc")

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, records, 1)
		assert.Equal(t, "session created", records[0]["msg"])
		assert.Equal(t, "abc", records[0]["sessionId"])
	})

	t.Run("Should call the handler for messages at or above the console level", func(t *testing.T) {
		var got []string
		sink, err := NewSink(SinkOptions{
			LogLevel: "info",
			Console:  io.Discard,
			Handler:  func(_ LogLevel, msg string) { got = append(got, msg) },
		})
		require.NoError(t, err)
		sink.Debug("quiet")
		sink.With("plugin", "images").Error("loud")
		assert.Equal(t, []string{"loud"}, got)
	})

	t.Run("Should warn and keep going when the webhook address is invalid", func(t *testing.T) {
		var buf bytes.Buffer
		sink, err := NewSink(SinkOptions{Webhook: "host:0", Console: &buf, NoColors: true})
		require.NoError(t, err)
		assert.Len(t, sink.outputs, 1)
		assert.Contains(t, buf.String(), "Ignoring invalid webhook address")
	})
}

func TestInitSink(t *testing.T) {
	t.Run("Should install the sink as the default logger and restore on clear", func(t *testing.T) {
		previous := GetDefault()
		t.Cleanup(func() { SetDefault(previous) })

		var buf bytes.Buffer
		sink, err := InitSink(SinkOptions{LogLevel: "debug", Console: &buf, NoColors: true})
		require.NoError(t, err)
		assert.Same(t, sink, GetDefault())

		Info("through the default")
		assert.Contains(t, buf.String(), "through the default")

		ClearSink()
		assert.NotSame(t, sink, GetDefault())
	})
}
