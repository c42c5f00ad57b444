package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/engine"
	"streetlight_monitor/internal/logging"
	"streetlight_monitor/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Analyzer runs an area analysis. Entity reports reach the hub through the
// engine's sinks.
type Analyzer interface {
	AnalyzeArea(ctx context.Context, area model.Area, date time.Time) (*engine.AreaReport, error)
}

// Handler manages WebSocket connections and routes messages to the engine.
type Handler struct {
	hub      *Hub
	analyzer Analyzer
	areas    map[string]model.Area
	resolver *calendar.Resolver
	log      zerolog.Logger
}

func NewHandler(hub *Hub, analyzer Analyzer, areas []model.Area) *Handler {
	byName := make(map[string]model.Area, len(areas))
	for _, a := range areas {
		byName[a.Name] = a
	}
	return &Handler{
		hub:      hub,
		analyzer: analyzer,
		areas:    byName,
		resolver: calendar.NewResolver(nil),
		log:      logging.Component("ws"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(h.hub, conn)
	h.hub.Register(client)
	go client.writePump()

	h.sendAreas(client)

	h.readPump(r.Context(), client)
}

func (h *Handler) readPump(ctx context.Context, c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		h.handleMessage(ctx, c, msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *Client, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.log.Debug().Err(err).Msg("invalid message")
		h.sendError(c, "invalid message")
		return
	}

	switch env.Type {
	case TypeSubscribe, TypeUnsubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Area == "" {
			h.sendError(c, "invalid "+env.Type+" payload")
			return
		}
		if env.Type == TypeSubscribe {
			c.Subscribe(p.Area)
		} else {
			c.Unsubscribe(p.Area)
		}

	case TypeAnalyze:
		var p AnalyzePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, "invalid area:analyze payload")
			return
		}
		area, ok := h.areas[p.Area]
		if !ok {
			h.sendError(c, "unknown area "+p.Area)
			return
		}
		date, err := h.resolver.ParseDate(p.Date)
		if err != nil {
			h.sendError(c, err.Error())
			return
		}
		go h.analyze(ctx, c, area, date)

	default:
		h.log.Debug().Str("type", env.Type).Msg("unknown message type")
		h.sendError(c, "unknown message type "+env.Type)
	}
}

func (h *Handler) analyze(ctx context.Context, c *Client, area model.Area, date time.Time) {
	report, err := h.analyzer.AnalyzeArea(ctx, area, date)
	if err != nil {
		h.log.Error().Err(err).Str("area", area.Name).Msg("area analysis failed")
		h.sendError(c, err.Error())
		return
	}
	msg, err := NewEnvelope(TypeAreaDone, AreaDoneFromReport(report))
	if err != nil {
		return
	}
	h.trySend(c, msg)
}

func (h *Handler) sendAreas(c *Client) {
	payload := AreasPayload{Areas: make([]AreaInfo, 0, len(h.areas))}
	for _, a := range h.areas {
		payload.Areas = append(payload.Areas, AreaInfo{Name: a.Name, Service: string(a.Service), Entities: a.Entities})
	}
	sort.Slice(payload.Areas, func(i, j int) bool { return payload.Areas[i].Name < payload.Areas[j].Name })

	msg, err := NewEnvelope(TypeAreas, payload)
	if err != nil {
		h.log.Error().Err(err).Msg("creating areas:list message failed")
		return
	}
	h.trySend(c, msg)
}

func (h *Handler) sendError(c *Client, text string) {
	msg, err := NewEnvelope(TypeError, ErrorPayload{Message: text})
	if err != nil {
		return
	}
	h.trySend(c, msg)
}

// trySend never blocks; a closed client is skipped.
func (h *Handler) trySend(c *Client, msg []byte) {
	h.hub.mu.RLock()
	defer h.hub.mu.RUnlock()
	if !h.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
