package websocket

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"docshub/collab"
	"docshub/core"
	"docshub/handlers/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 5000000
)

// Gateway admits editing sessions into per-resource rooms. Admission is
// all-or-nothing: a connection that fails authentication or role
// resolution is closed with a distinguishable close code before it ever
// touches the registry.
type Gateway struct {
	registry *collab.Registry
	store    core.ResourceStore
	sessions core.SessionResolver
	upgrader websocket.Upgrader
}

func NewGateway(registry *collab.Registry, store core.ResourceStore, sessions core.SessionResolver) *Gateway {
	return &Gateway{
		registry: registry,
		store:    store,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleRoom serves GET /ws/{resourceType}/{id}. The credential is
// taken from the Authorization header or, for browser clients that
// cannot set headers on WebSocket upgrades, the token query parameter.
func (g *Gateway) HandleRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := core.ParseResourceKind(chi.URLParam(r, "resourceType"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		key := core.ResourceKey{Kind: kind, ID: chi.URLParam(r, "id")}

		ws, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).Warn("websocket upgrade failed")
			return
		}

		identity, err := g.sessions.Resolve(auth.CredentialFrom(r))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"room":  key.String(),
				"error": err,
			}).Warn("rejecting unauthenticated connection")
			closeWithCode(ws, core.CloseUnauthenticated, "unauthenticated")
			return
		}

		role, ok, err := g.store.RoleFor(r.Context(), key, identity.Subject)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			logrus.WithError(err).WithField("room", key.String()).Error("role resolution failed")
			closeWithCode(ws, websocket.CloseInternalServerErr, "role resolution failed")
			return
		}
		if !ok {
			logrus.WithFields(logrus.Fields{
				"room":     key.String(),
				"username": identity.Username,
			}).Warn("rejecting connection without role")
			closeWithCode(ws, core.CloseForbidden, "forbidden")
			return
		}

		conn := collab.NewConn(identity, role, key)
		room := g.registry.Join(conn)
		logrus.WithFields(logrus.Fields{
			"room":     key.String(),
			"username": identity.Username,
			"role":     role,
		}).Info("connection admitted")

		go writePump(ws, conn)
		g.readLoop(ws, conn, room)
	}
}

// readLoop consumes inbound envelopes until the transport drops or the
// connection is torn down, then removes the connection from its room.
// Local failures (malformed payloads, role violations) answer the
// sender and keep the connection open.
func (g *Gateway) readLoop(ws *websocket.Conn, conn *collab.Conn, room *collab.Room) {
	defer func() {
		conn.SetState(collab.StateClosing)
		g.registry.Leave(conn)
		conn.Close()
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-conn.Done():
			return
		default:
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.WithError(err).WithField("room", conn.Key().String()).Debug("read failed")
			}
			return
		}

		msg, err := core.DecodeMessage(data)
		if err != nil {
			conn.Deliver(core.ErrorMessage{Message: err.Error()})
			continue
		}
		if !core.Privileged(msg) {
			// Presence and error events are server-emitted only.
			conn.Deliver(core.ErrorMessage{Message: core.ErrMalformedMessage.Error() + ": type not accepted from clients"})
			continue
		}

		if err := room.Publish(conn, msg); err != nil {
			conn.Deliver(core.ErrorMessage{Message: err.Error()})
		}
	}
}

// writePump drains the connection's outbound queue onto the transport.
// A write failure closes the connection; the read loop then handles the
// registry cleanup.
func writePump(ws *websocket.Conn, conn *collab.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		ws.Close()
	}()

	for {
		select {
		case msg := <-conn.Outbound():
			data, err := core.EncodeMessage(msg)
			if err != nil {
				logrus.WithError(err).Error("failed to encode outbound message")
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.Done():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func closeWithCode(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	ws.Close()
}
