// README: Websocket transport for the dispatch hub.
package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fieldops/internal/http/middleware"
	"fieldops/internal/modules/appointment"
	"fieldops/internal/modules/dispatch"
	"fieldops/internal/modules/location"
	"fieldops/internal/types"
)

const (
	frameRegister  = "technician:register"
	frameTrack     = "job:track"
	frameUntrack   = "job:untrack"
	frameLocation  = "location:update"
	eventError     = "error"
	eventConnected = "connected"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameBytes  = 4096
	replyQueueSize = 8
)

// JobLookup confirms a tracked job belongs to the caller's tenant.
type JobLookup interface {
	Get(ctx context.Context, tenantID, id types.ID) (*appointment.Appointment, error)
}

type RealtimeHandler struct {
	hub      *dispatch.Hub
	pings    PingService
	jobs     JobLookup
	upgrader websocket.Upgrader
}

func NewRealtimeHandler(hub *dispatch.Hub, pings PingService, jobs JobLookup) *RealtimeHandler {
	return &RealtimeHandler{
		hub:   hub,
		pings: pings,
		jobs:  jobs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// clientFrame is a client-to-server frame. Which fields are set depends on Type.
type clientFrame struct {
	Type         string   `json:"type"`
	TechnicianID string   `json:"technicianId,omitempty"`
	JobID        string   `json:"jobId,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Accuracy     *float64 `json:"accuracy,omitempty"`
	Heading      *float64 `json:"heading,omitempty"`
	Speed        *float64 `json:"speed,omitempty"`
	Status       string   `json:"status,omitempty"`
}

type session struct {
	connID  string
	uid     string
	role    string
	tenant  types.ID
	replies chan dispatch.Message
}

func (s *session) reply(event string, data any) {
	select {
	case s.replies <- dispatch.Message{Event: event, Data: data}:
	default:
		log.Printf("realtime: reply dropped conn=%s event=%s", s.connID, event)
	}
}

func (s *session) fail(msg string) {
	s.reply(eventError, gin.H{"message": msg})
}

func (h *RealtimeHandler) Serve(c *gin.Context) {
	tenant, ok := callerTenant(c)
	if !ok {
		return
	}
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("realtime: upgrade failed: %v", err)
		return
	}

	s := &session{
		connID:  uuid.NewString(),
		uid:     middleware.CallerUID(c),
		role:    middleware.CallerRole(c),
		tenant:  tenant,
		replies: make(chan dispatch.Message, replyQueueSize),
	}
	client := h.hub.Connect(s.connID)
	if s.role == RoleDispatcher || s.role == RoleAdmin {
		_ = h.hub.Join(s.connID, dispatch.TenantRoom(tenant))
	}
	s.reply(eventConnected, gin.H{"connectionId": s.connID})

	go h.writeLoop(ws, client, s)
	h.readLoop(c.Request.Context(), ws, s)
}

// readLoop owns the read side. When it returns the hub closes the client channel,
// which stops writeLoop.
func (h *RealtimeHandler) readLoop(ctx context.Context, ws *websocket.Conn, s *session) {
	defer h.hub.Disconnect(s.connID)

	ws.SetReadLimit(maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f clientFrame
		if err := ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: read conn=%s: %v", s.connID, err)
			}
			return
		}
		h.handleFrame(ctx, s, f)
	}
}

func (h *RealtimeHandler) handleFrame(ctx context.Context, s *session, f clientFrame) {
	switch f.Type {
	case frameRegister:
		id := f.TechnicianID
		if id == "" {
			id = s.uid
		}
		if id != s.uid && s.role != RoleDispatcher && s.role != RoleAdmin {
			s.fail("cannot register as another technician")
			return
		}
		if err := h.hub.RegisterTechnician(s.connID, types.ID(id), s.tenant); err != nil {
			s.fail(err.Error())
		}

	case frameTrack:
		if !isValidID(f.JobID) {
			s.fail("invalid jobId")
			return
		}
		if h.jobs != nil {
			if _, err := h.jobs.Get(ctx, s.tenant, types.ID(f.JobID)); err != nil {
				if errors.Is(err, types.ErrNotFound) {
					s.fail("unknown job")
				} else {
					log.Printf("realtime: job lookup conn=%s job=%s: %v", s.connID, f.JobID, err)
					s.fail("internal error")
				}
				return
			}
		}
		if err := h.hub.TrackJob(s.connID, types.ID(f.JobID)); err != nil {
			s.fail(err.Error())
		}

	case frameUntrack:
		h.hub.UntrackJob(s.connID, types.ID(f.JobID))

	case frameLocation:
		if conn, ok := h.hub.TechnicianConn(types.ID(s.uid)); !ok || conn != s.connID {
			s.fail("register as a technician before sending locations")
			return
		}
		if f.Latitude == nil || f.Longitude == nil {
			s.fail("latitude and longitude are required")
			return
		}
		_, err := h.pings.OnLocationPing(ctx, location.Ping{
			UserID:   types.ID(s.uid),
			TenantID: s.tenant,
			Position: types.Point{Lat: *f.Latitude, Lng: *f.Longitude},
			Accuracy: f.Accuracy,
			Heading:  f.Heading,
			Speed:    f.Speed,
			Status:   location.Status(f.Status),
		})
		if err != nil {
			if errors.Is(err, types.ErrInvalidInput) {
				s.fail(err.Error())
			} else {
				log.Printf("realtime: ping conn=%s: %v", s.connID, err)
				s.fail("internal error")
			}
		}

	default:
		s.fail("unknown frame type " + f.Type)
	}
}

// writeLoop is the only writer on ws.
func (h *RealtimeHandler) writeLoop(ws *websocket.Conn, client *dispatch.Client, s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	write := func(m dispatch.Message) bool {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		return ws.WriteJSON(m) == nil
	}

	for {
		select {
		case m, ok := <-client.Messages():
			if !ok {
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if !write(m) {
				return
			}
		case m := <-s.replies:
			if !write(m) {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
