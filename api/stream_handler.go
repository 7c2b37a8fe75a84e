package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xraph/courier/stream"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxControlMessageSize = 4 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

var subscriberSeq atomic.Uint64

// controlMessage is the client-to-server frame on the stream socket.
type controlMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics,omitempty"`
	Types  []string `json:"types,omitempty"`
	N      int64    `json:"n,omitempty"`
}

// stream upgrades the connection and bridges the realtime broker to the
// client. Initial topics come from the "topics" query parameter
// (comma-separated); scope filtering from "user_id"/"team_id".
func (a *API) stream(w http.ResponseWriter, r *http.Request) {
	topics := splitList(r.URL.Query().Get("topics"))
	if len(topics) == 0 {
		topics = []string{stream.TopicFirehose}
	}
	for _, topic := range topics {
		if err := stream.ValidateTopic(topic); err != nil {
			a.badRequest(w, err.Error())
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	subscriberID := fmt.Sprintf("sub_%d_%d", time.Now().UnixNano(), subscriberSeq.Add(1))
	sub := a.eng.Broker().Subscribe(subscriberID, topics...)

	if userID := r.URL.Query().Get("user_id"); userID != "" {
		sub.SetScope(userID, r.URL.Query().Get("team_id"))
	}
	if types := splitList(r.URL.Query().Get("types")); len(types) > 0 {
		sub.SetEventTypes(toEventTypes(types)...)
	}

	a.logger.Info("stream subscriber connected",
		slog.String("subscriber_id", subscriberID),
		slog.Int("topics", len(topics)))

	go a.streamWriter(conn, sub)
	a.streamReader(conn, subscriberID)
}

// streamWriter pushes broker events and pings to the socket until the
// subscriber channel closes.
func (a *API) streamWriter(conn *websocket.Conn, sub *stream.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case evt, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "broker shutting down"))
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// streamReader consumes control frames and keeps the broker heartbeat
// fresh. Returning removes the subscriber, which closes its channel and
// stops the writer.
func (a *API) streamReader(conn *websocket.Conn, subscriberID string) {
	defer func() {
		a.eng.Broker().RemoveSubscriber(subscriberID)
		_ = conn.Close()
		a.logger.Info("stream subscriber disconnected",
			slog.String("subscriber_id", subscriberID))
	}()

	conn.SetReadLimit(maxControlMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		a.eng.Broker().Heartbeat(subscriberID)
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		a.handleControl(subscriberID, msg)
	}
}

func (a *API) handleControl(subscriberID string, msg controlMessage) {
	broker := a.eng.Broker()

	switch msg.Action {
	case "subscribe":
		valid := msg.Topics[:0:0]
		for _, topic := range msg.Topics {
			if stream.ValidateTopic(topic) == nil {
				valid = append(valid, topic)
			}
		}
		if len(valid) > 0 {
			broker.SubscribeTo(subscriberID, valid...)
		}
	case "unsubscribe":
		broker.Unsubscribe(subscriberID, msg.Topics...)
	case "credits":
		if sub, ok := broker.GetSubscriber(subscriberID); ok && msg.N > 0 {
			sub.AddCredits(msg.N)
		}
	case "heartbeat":
		broker.Heartbeat(subscriberID)
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toEventTypes(names []string) []stream.EventType {
	types := make([]stream.EventType, 0, len(names))
	for _, n := range names {
		types = append(types, stream.EventType(n))
	}
	return types
}
