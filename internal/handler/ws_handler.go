package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-timetable/internal/model"
	"github.com/stemsi/exstem-timetable/internal/response"
	"github.com/stemsi/exstem-timetable/internal/service"
	"github.com/stemsi/exstem-timetable/internal/validator"
	ws "github.com/stemsi/exstem-timetable/internal/websocket"
)

const pingInterval = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ClassUpdateSubscriber opens a PubSub on a class's update channel.
type ClassUpdateSubscriber interface {
	SubscribeClass(ctx context.Context, term, className string) *redis.PubSub
}

// WSHandler streams class timetable changes to connected clients.
type WSHandler struct {
	timetableService *service.TimetableService
	updates          ClassUpdateSubscriber
	log              zerolog.Logger
	upgrader         websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. A nil subscriber disables streaming
// (Redis off) and the endpoint answers 503.
func NewWSHandler(timetableService *service.TimetableService, updates ClassUpdateSubscriber, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		timetableService: timetableService,
		updates:          updates,
		log:              log.With().Str("component", "ws_handler").Logger(),
		upgrader:         buildUpgrader(allowedOrigins),
	}
}

// ClassTimetableStream godoc
// WS /ws/v1/timetable/class?term=&class_name=&token=
// Sends the class grid on connect, then a fresh grid every time a committed
// write touches the class.
func (h *WSHandler) ClassTimetableStream(c *gin.Context) {
	var q classTimetableQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if h.updates == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("term", q.Term).
		Str("class", q.ClassName).
		Logger()

	// The request context is not cancelled when a hijacked connection drops,
	// so the reader goroutine owns cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := h.updates.SubscribeClass(ctx, q.Term, q.ClassName)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		wsLog.Error().Err(err).Msg("Subscribe failed")
		_ = ws.WriteError(conn, "subscription failed")
		return
	}

	if err := h.sendSnapshot(ctx, conn, q.Term, q.ClassName); err != nil {
		wsLog.Debug().Err(err).Msg("Initial snapshot failed")
		return
	}
	wsLog.Info().Msg("Client subscribed")

	actions := make(chan ws.Action, 8)
	go func() {
		defer cancel()
		defer close(actions)
		ws.ExtendReadDeadline(conn)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				} else {
					wsLog.Debug().Msg("Connection closed")
				}
				return
			}
			select {
			case actions <- msg.Action:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}

		case action, ok := <-actions:
			if !ok {
				return
			}
			switch action {
			case ws.ActionPing:
				err = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			case ws.ActionRefresh:
				err = h.sendSnapshot(ctx, conn, q.Term, q.ClassName)
			default:
				wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
				err = ws.WriteError(conn, "unknown action: "+string(action))
			}
			if err != nil {
				return
			}

		case msg, ok := <-messages:
			if !ok {
				return
			}
			var update model.ClassUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				wsLog.Warn().Err(err).Msg("Malformed class update")
				continue
			}
			if err := h.sendUpdate(ctx, conn, update); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) sendSnapshot(ctx context.Context, conn *websocket.Conn, term, className string) error {
	slots, err := h.timetableService.GetClassTimetable(ctx, term, className)
	if err != nil {
		h.log.Error().Err(err).Str("class", className).Msg("Load class grid failed")
		return ws.WriteError(conn, "failed to load timetable")
	}
	return ws.WriteTyped(conn, ws.SnapshotResponse{
		Event:     ws.EventSnapshot,
		Term:      term,
		ClassName: className,
		Timetable: slots,
	})
}

func (h *WSHandler) sendUpdate(ctx context.Context, conn *websocket.Conn, update model.ClassUpdate) error {
	slots, err := h.timetableService.GetClassTimetable(ctx, update.Term, update.ClassName)
	if err != nil {
		h.log.Error().Err(err).Str("class", update.ClassName).Msg("Load class grid failed")
		return ws.WriteError(conn, "failed to load timetable")
	}
	return ws.WriteTyped(conn, ws.UpdatedResponse{
		Event:     ws.EventTimetableUpdated,
		Update:    update,
		Timetable: slots,
	})
}
