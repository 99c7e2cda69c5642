// Package trace ships LLM call records to an external collector over HTTP.
package trace

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

const (
	bufferSize    = 1024
	batchSize     = 64
	flushInterval = time.Second

	// MaxTextLen bounds the prompt and response text kept per entry.
	MaxTextLen = 2000
)

// Entry is one LLM attempt.
type Entry struct {
	ID               string `json:"id"`
	RequestID        string `json:"request_id"`
	Kind             string `json:"kind"` // "chat" or "vision"
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	Attempt          int    `json:"attempt"`
	Prompt           string `json:"prompt"`
	Response         string `json:"response,omitempty"`
	Error            string `json:"error,omitempty"`
	DurationMs       int64  `json:"duration_ms"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	Timestamp        int64  `json:"timestamp"` // unix milliseconds
}

// Truncate shortens s to at most MaxTextLen bytes without splitting a
// UTF-8 sequence.
func Truncate(s string) string {
	if len(s) <= MaxTextLen {
		return s
	}
	cut := MaxTextLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Collector queues entries in memory and a single sender goroutine POSTs
// them as JSON arrays of up to batchSize entries. The sender wakes every
// flushInterval, or as soon as a full batch is waiting. At most bufferSize
// entries are held; later ones are dropped and counted.
//
//	c := trace.NewCollector("https://traces.example.com/ingest", nil)
//	defer c.Close()
type Collector struct {
	url    string
	client *http.Client

	mu      sync.Mutex
	pending []*Entry
	closed  bool
	dropped atomic.Int64

	wake chan struct{} // buffered; a pending send means work is waiting
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewCollector creates a Collector that POSTs trace batches to url.
// If client is nil, a default client with 5s timeout is used.
func NewCollector(url string, client *http.Client) *Collector {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	c := &Collector{
		url:    url,
		client: client,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

// RecordAsync queues an entry without blocking on the network. Entries
// arriving after Close or while bufferSize entries are pending are dropped.
func (c *Collector) RecordAsync(e *Entry) {
	c.mu.Lock()
	if c.closed || len(c.pending) >= bufferSize {
		c.mu.Unlock()
		c.dropped.Add(1)
		slog.Debug("trace: dropping entry", "request_id", e.RequestID)
		return
	}
	c.pending = append(c.pending, e)
	full := len(c.pending) >= batchSize
	c.mu.Unlock()

	if full {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// Dropped reports how many entries were discarded.
func (c *Collector) Dropped() int64 { return c.dropped.Load() }

// Close stops accepting entries, sends what is pending and waits for the
// sender to exit.
func (c *Collector) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.quit)
		<-c.done
		if n := c.Dropped(); n > 0 {
			slog.Warn("trace: entries dropped", "count", n)
		}
	})
	return nil
}

func (c *Collector) run() {
	defer close(c.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			c.sendPending()
			return
		case <-ticker.C:
		case <-c.wake:
		}
		c.sendPending()
	}
}

// sendPending takes everything queued so far and posts it in batches.
func (c *Collector) sendPending() {
	c.mu.Lock()
	queued := c.pending
	c.pending = nil
	c.mu.Unlock()

	for len(queued) > 0 {
		n := min(len(queued), batchSize)
		c.post(queued[:n])
		queued = queued[n:]
	}
}

func (c *Collector) post(batch []*Entry) {
	body, err := json.Marshal(batch)
	if err != nil {
		slog.Error("trace: marshal", "error", err)
		return
	}
	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		slog.Warn("trace: bad collector url", "url", c.url, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("trace: post failed", "error", err, "url", c.url, "entries", len(batch))
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		slog.Warn("trace: post rejected", "status", resp.StatusCode, "entries", len(batch))
	}
}
