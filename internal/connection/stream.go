package connection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// SSE field prefixes
const (
	fieldEvent   = "event:"
	fieldData    = "data:"
	fieldComment = ":"
)

// streamDialer implements StreamDialer over net/http.
type streamDialer struct {
	cfg    StreamConfig
	logger *slog.Logger
}

// NewStreamDialer creates a push-only (SSE) driver.
func NewStreamDialer(cfg StreamConfig, logger *slog.Logger) StreamDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.MaxEventSize <= 0 {
		cfg.MaxEventSize = DefaultStreamConfig().MaxEventSize
	}
	return &streamDialer{cfg: cfg, logger: logger}
}

// OpenStream validates the URL and starts the request in the background.
func (d *streamDialer) OpenStream(rawURL string, h StreamHandler) (Stream, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range d.cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	s := &stream{
		cfg:     d.cfg,
		logger:  d.logger.With("url", rawURL),
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
	}
	go s.run(req)

	return s, nil
}

// stream implements the Stream interface.
type stream struct {
	cfg     StreamConfig
	logger  *slog.Logger
	handler StreamHandler

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// Close cancels the request and stops the read loop.
func (s *stream) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

func (s *stream) run(req *http.Request) {
	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		s.fail(fmt.Errorf("stream connect: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.fail(fmt.Errorf("%w: %s", ErrBadStatus, resp.Status))
		return
	}

	if s.ctx.Err() != nil {
		return
	}
	s.logger.Debug("stream connected")
	s.handler.OnOpen()

	err = s.readLoop(resp.Body)
	if err == nil || errors.Is(err, io.EOF) {
		err = ErrStreamEnded
	}
	s.fail(err)
}

// readLoop parses text/event-stream framing. Multiple data lines are joined
// with "\n"; a blank line dispatches the pending event.
func (s *stream) readLoop(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), s.cfg.MaxEventSize)

	var (
		eventName string
		data      strings.Builder
		hasData   bool
	)

	for scanner.Scan() {
		if s.ctx.Err() != nil {
			return nil
		}

		line := scanner.Text()
		switch {
		case line == "":
			if hasData {
				payload := []byte(data.String())
				s.handler.OnMessage(eventName, payload)
			}
			eventName = ""
			data.Reset()
			hasData = false

		case strings.HasPrefix(line, fieldComment):
			// heartbeat comment

		case strings.HasPrefix(line, fieldData):
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(trimField(line, fieldData))
			hasData = true

		case strings.HasPrefix(line, fieldEvent):
			eventName = trimField(line, fieldEvent)

		default:
			// id:, retry: and unknown fields are ignored
		}
	}

	return scanner.Err()
}

// fail reports a terminal error unless the stream was closed by its owner.
func (s *stream) fail(err error) {
	if s.ctx.Err() != nil {
		return
	}
	s.logger.Debug("stream failed", "error", err)
	s.handler.OnError(err)
}

// trimField strips the field prefix and one optional leading space.
func trimField(line, prefix string) string {
	v := strings.TrimPrefix(line, prefix)
	return strings.TrimPrefix(v, " ")
}
