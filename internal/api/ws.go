package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"symptom-interview/internal/interview"
	"symptom-interview/internal/symptom"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 4,
	WriteBufferSize: 1024 * 16,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocket message types from client.
const (
	wsMsgQuery = "query"
)

// WebSocket message types to client.
const (
	wsMsgResults = "results"
	wsMsgError   = "error"
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsQuery is the payload for "query" messages, one per keystroke.
type wsQuery struct {
	Q   string `json:"q"`
	Age int    `json:"age"`
}

// wsResults is pushed once per settled query.
type wsResults struct {
	Query    string              `json:"query"`
	Symptoms []interview.Symptom `json:"symptoms"`
	Degraded bool                `json:"degraded"`
}

// wsConn serializes writes; the read loop and debounced searches share it.
type wsConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *zerolog.Logger
}

func (c *wsConn) send(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Error().Err(err).Msg("ws marshal")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(wsMessage{Type: msgType, Data: raw}); err != nil {
		c.logger.Debug().Err(err).Msg("ws write")
	}
}

func (c *wsConn) sendError(msg string) {
	c.send(wsMsgError, map[string]string{"message": msg})
}

func (s *Server) handleSearchWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With().Str("component", "symptom_ws").Logger()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &wsConn{conn: conn, logger: &logger}
	typeahead := symptom.NewTypeahead(s.search, s.debounce, func(query string, res interview.SearchResult, err error) {
		if err != nil {
			c.sendError(err.Error())
			return
		}
		s.metrics.RecordSearch(ctx, res.Degraded)
		c.send(wsMsgResults, wsResults{Query: query, Symptoms: res.Symptoms, Degraded: res.Degraded})
	})
	defer typeahead.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("websocket read")
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}

		switch msg.Type {
		case wsMsgQuery:
			var q wsQuery
			if err := json.Unmarshal(msg.Data, &q); err != nil {
				c.sendError("invalid query data")
				continue
			}
			if q.Age < 1 || q.Age > 130 {
				c.sendError("age must be between 1 and 130")
				continue
			}
			typeahead.Input(ctx, q.Q, q.Age)
		default:
			c.sendError("unknown message type: " + msg.Type)
		}
	}
}
