package v1

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adanyl0v/go-todo-share/internal/models"
	"github.com/adanyl0v/go-todo-share/internal/realtime"
)

const (
	streamActionSubscribe   = "subscribe"
	streamActionUnsubscribe = "unsubscribe"

	streamEventSubscribed   = "subscribed"
	streamEventUnsubscribed = "unsubscribed"
	streamEventError        = "error"
)

type streamRequest struct {
	Action string `json:"action"`
	TaskID string `json:"taskId"`
}

type streamFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type streamAck struct {
	TaskID string `json:"taskId"`
}

type streamError struct {
	TaskID  string `json:"taskId,omitempty"`
	Message string `json:"message"`
}

// wsSink writes hub events to one WebSocket connection.
type wsSink struct {
	conn *websocket.Conn
}

var _ realtime.Sink = (*wsSink)(nil)

func (s *wsSink) Send(ctx context.Context, event models.ChangeEvent) error {
	return wsjson.Write(ctx, s.conn, streamFrame{
		Event: string(event.Kind),
		Data:  json.RawMessage(event.Payload),
	})
}

func (s *wsSink) Close() {
	_ = s.conn.Close(websocket.StatusGoingAway, "session closed")
}

// HandleStream upgrades to a WebSocket and attaches the connection to the
// hub. The session starts on its "my tasks" channel and may subscribe to
// any task it can read.
func (h *handlerImpl) HandleStream(c *gin.Context) {
	userID, _ := getStringFromContext(c, userIDCtxKey)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.stream.AllowedOrigins,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to accept websocket")
		return
	}
	if h.stream.MaxMessageSize > 0 {
		conn.SetReadLimit(h.stream.MaxMessageSize)
	}

	sessionID := uuid.NewString()
	err = h.hub.Attach(sessionID, userID, &wsSink{conn: conn})
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("session_id", sessionID).
			Msg("failed to attach session")
		_ = conn.Close(websocket.StatusTryAgainLater, "server is shutting down")
		return
	}
	defer h.hub.Detach(sessionID)

	err = h.hub.SubscribeOwnTasks(sessionID)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("session_id", sessionID).
			Msg("failed to subscribe to own tasks")
		return
	}
	h.logger.Info().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Msg("stream connected")

	ctx := c.Request.Context()
	for {
		var req streamRequest
		err = wsjson.Read(ctx, conn, &req)
		if err != nil {
			h.logStreamClosed(sessionID, err)
			return
		}

		reply := h.handleStreamRequest(ctx, sessionID, userID, req)
		err = wsjson.Write(ctx, conn, reply)
		if err != nil {
			h.logStreamClosed(sessionID, err)
			return
		}
	}
}

func (h *handlerImpl) handleStreamRequest(ctx context.Context, sessionID, userID string, req streamRequest) streamFrame {
	if req.TaskID == "" {
		return streamFrame{Event: streamEventError, Data: streamError{Message: "taskId is required"}}
	}

	switch req.Action {
	case streamActionSubscribe:
		_, err := h.tasks.GetTask(ctx, userID, req.TaskID)
		if err != nil {
			h.logger.Warn().
				Err(err).
				Str("session_id", sessionID).
				Str("task_id", req.TaskID).
				Msg("subscription denied")
			return streamFrame{Event: streamEventError, Data: streamError{
				TaskID:  req.TaskID,
				Message: newServiceError(err).Message,
			}}
		}
		err = h.hub.Subscribe(sessionID, req.TaskID)
		if err != nil {
			return streamFrame{Event: streamEventError, Data: streamError{TaskID: req.TaskID, Message: err.Error()}}
		}
		h.logger.Debug().
			Str("session_id", sessionID).
			Str("task_id", req.TaskID).
			Msg("subscribed to task")
		return streamFrame{Event: streamEventSubscribed, Data: streamAck{TaskID: req.TaskID}}
	case streamActionUnsubscribe:
		err := h.hub.Unsubscribe(sessionID, req.TaskID)
		if err != nil {
			return streamFrame{Event: streamEventError, Data: streamError{TaskID: req.TaskID, Message: err.Error()}}
		}
		return streamFrame{Event: streamEventUnsubscribed, Data: streamAck{TaskID: req.TaskID}}
	default:
		return streamFrame{Event: streamEventError, Data: streamError{
			TaskID:  req.TaskID,
			Message: "unknown action " + req.Action,
		}}
	}
}

func (h *handlerImpl) logStreamClosed(sessionID string, err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
		errors.Is(err, context.Canceled) {
		h.logger.Info().
			Str("session_id", sessionID).
			Msg("stream closed")
		return
	}
	h.logger.Warn().
		Err(err).
		Str("session_id", sessionID).
		Msg("stream closed with error")
}
