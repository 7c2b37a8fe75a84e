package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/xraph/courier/stream"
)

// Stream connects to the server's event stream and delivers events for
// the given topics until ctx is cancelled or the connection drops. The
// returned channel is closed when the stream ends.
func (c *Client) Stream(ctx context.Context, topics ...string) (<-chan *stream.Event, error) {
	target, err := c.streamURL(topics)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("client: dial stream: %w", err)
	}

	events := make(chan *stream.Event, 16)
	go c.readEvents(ctx, conn, events)
	return events, nil
}

func (c *Client) streamURL(topics []string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("client: parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/stream"
	if len(topics) > 0 {
		q := u.Query()
		q.Set("topics", strings.Join(topics, ","))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) readEvents(ctx context.Context, conn *websocket.Conn, events chan<- *stream.Event) {
	defer close(events)
	defer conn.Close()

	// Close the socket when the context ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	for {
		var evt stream.Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("stream closed", slog.String("error", err.Error()))
			}
			return
		}
		select {
		case events <- &evt:
		case <-ctx.Done():
			return
		}
	}
}
