package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	socketPath = "/ws"
	streamPath = "/api/events/"
)

// socketURL derives the bidirectional endpoint from the base URL:
// http -> ws, https -> wss, path + "/ws".
func socketURL(base string) (string, error) {
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + socketPath
	u.RawPath = ""
	return u.String(), nil
}

// streamURL derives the push-only endpoint for one topic:
// {base}/api/events/{topic}, with ws schemes mapped back to http.
func streamURL(base, topic string) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("empty topic")
	}
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	prefix := strings.TrimRight(u.Path, "/") + streamPath
	u.Path = prefix + topic
	u.RawPath = prefix + url.PathEscape(topic)
	return u.String(), nil
}

func parseBase(base string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("base url %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", base)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
