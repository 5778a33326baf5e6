package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsMaxMessage = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type wsMessage struct {
	Type     string        `json:"type"`
	Delivery *deliveryView `json:"delivery,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Stream handles GET /api/fill/{id}/ws. The client sends query updates as JSON text
// messages ({"text": ..., "strict": ...}); the server pushes every delivery of the flow and
// closes the socket when the flow ends.
func (h *FillHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, err := h.Flows.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.String("flow", id), zap.Error(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := f.Subscribe()
	defer unsubscribe()

	errs := make(chan string, 8)
	readerDone := make(chan struct{})
	go h.readQueries(conn, id, func(req queryRequest) {
		if _, err := applyQuery(f, req); err != nil {
			report(errs, err.Error())
		}
	}, errs, readerDone)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		var msg wsMessage
		select {
		case d, ok := <-updates:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, f.State().String()))
				return
			}
			v := viewOf(d)
			msg = wsMessage{Type: "results", Delivery: &v}
		case e := <-errs:
			msg = wsMessage{Type: "error", Error: e}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case <-readerDone:
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			h.Log.Debug("websocket write failed", zap.String("flow", id), zap.Error(err))
			return
		}
	}
}

func (h *FillHandler) readQueries(conn *websocket.Conn, id string, apply func(queryRequest), errs chan<- string, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Log.Debug("websocket read failed", zap.String("flow", id), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var req queryRequest
		if err := json.Unmarshal(data, &req); err != nil || req.empty() {
			report(errs, "invalid query message")
			continue
		}
		if err := validate.Struct(req); err != nil {
			report(errs, "invalid query message")
			continue
		}
		apply(req)
	}
}

// report drops the message when the writer is not keeping up.
func report(errs chan<- string, msg string) {
	select {
	case errs <- msg:
	default:
	}
}
