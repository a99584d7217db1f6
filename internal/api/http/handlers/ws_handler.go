package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/api/dto"
	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/realtime"
	"github.com/spec-kit/case-service/internal/service"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// WSHandler upgrades authenticated clients to websocket connections and
// bridges inbound frames to the channel router and message log.
type WSHandler struct {
	registry *realtime.Registry
	router   *realtime.Router
	messages *service.MessageService
	logger   *zap.Logger
}

// NewWSHandler constructs handler.
func NewWSHandler(registry *realtime.Registry, router *realtime.Router, messages *service.MessageService, logger *zap.Logger) *WSHandler {
	return &WSHandler{registry: registry, router: router, messages: messages, logger: logger}
}

// Upgrade gates the websocket handshake to authenticated callers and stashes
// the identity for the connection handler.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("ws_identity", principal.Identity())
	return c.Next()
}

// Serve is the websocket connection loop. It registers the connection for
// notification pushes, reads client commands until the peer goes away, and
// releases every channel binding on the way out.
func (h *WSHandler) Serve() fiber.Handler {
	return websocket.New(func(ws *websocket.Conn) {
		identity, ok := ws.Locals("ws_identity").(domain.Identity)
		if !ok {
			_ = ws.Close()
			return
		}

		conn := newWSConn(ws, identity)
		// ctx spans the connection's lifetime so in-flight joins and
		// sends are abandoned when the socket dies.
		ctx, cancel := context.WithCancel(context.Background())
		h.registry.Register(conn)
		defer func() {
			cancel()
			h.router.Disconnect(conn)
			h.registry.Unregister(conn)
			_ = ws.Close()
		}()

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var cmd dto.ClientCommand
			if err := json.Unmarshal(raw, &cmd); err != nil {
				conn.sendError("", apperrors.NewValidationError("malformed frame", nil))
				continue
			}
			h.dispatch(ctx, conn, cmd)
		}
	})
}

func (h *WSHandler) dispatch(ctx context.Context, conn *wsConn, cmd dto.ClientCommand) {
	switch cmd.Action {
	case dto.ActionJoin:
		if err := h.router.Join(ctx, conn, cmd.CaseID); err != nil {
			conn.sendError(cmd.CaseID, err)
		}
	case dto.ActionLeave:
		h.router.Leave(conn, cmd.CaseID)
	case dto.ActionSend:
		if _, err := h.messages.AppendMessage(ctx, conn.Identity(), cmd.CaseID, cmd.Body); err != nil {
			conn.sendError(cmd.CaseID, err)
		}
	default:
		conn.sendError(cmd.CaseID, apperrors.NewValidationError("unknown action", map[string]any{"action": cmd.Action}))
	}
}

// wsConn adapts one websocket to the realtime Connection interface. Writes
// are serialized on a mutex because broadcasts, notification pushes and
// command replies race for the socket.
type wsConn struct {
	id       string
	identity domain.Identity

	writeMu sync.Mutex
	ws      *websocket.Conn
	closed  bool
}

func newWSConn(ws *websocket.Conn, identity domain.Identity) *wsConn {
	return &wsConn{id: uuid.NewString(), identity: identity, ws: ws}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Identity() domain.Identity { return c.identity }

// Send writes one envelope frame. After the first write failure the
// connection is treated as gone.
func (c *wsConn) Send(env realtime.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if err := c.ws.WriteJSON(env); err != nil {
		c.closed = true
		return err
	}
	return nil
}

// sendError pushes a refusal frame; the connection stays open.
func (c *wsConn) sendError(caseID string, err error) {
	domainErr := apperrors.ToDomainError(err)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	if writeErr := c.ws.WriteJSON(dto.WSError{
		Type:    "error",
		Code:    domainErr.Code,
		Message: domainErr.Message,
		CaseID:  caseID,
	}); writeErr != nil {
		c.closed = true
	}
}
