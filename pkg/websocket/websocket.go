package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bus-fleet/pkg/auth"
	"bus-fleet/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Period of sending pings; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512

	// Time allowed to send the auth message after the upgrade
	authTime = 5 * time.Second

	sendBuffer = 256
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

type wsErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type authRequest struct {
	Type  string `json:"type"`
	Token string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Connection is one authenticated websocket client.
type Connection struct {
	ID     string
	Claims *auth.AppClaims

	conn *websocket.Conn
	log  logger.Logger
	send chan []byte
	done chan struct{}
	mu   sync.Mutex
}

func newConnection(conn *websocket.Conn, log logger.Logger, claims *auth.AppClaims) *Connection {
	id := uuid.NewString()
	return &Connection{
		ID:     id,
		Claims: claims,
		conn:   conn,
		log:    log.WithFields(logger.LogFields{"conn_id": id, "user_id": claims.UserID}),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.log.Error("websocket_write", err)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Debug("websocket_ping", err.Error())
				return
			}
		case <-c.done:
			_ = c.write(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Connection) write(mt int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(mt, payload)
}

// WriteJSON queues v without blocking. A slow client loses messages rather
// than stalling the sender.
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteRaw(data)
}

// WriteRaw queues an already encoded message.
func (c *Connection) WriteRaw(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// ReadPump blocks reading client messages until the peer goes away.
func (c *Connection) ReadPump(onMessage func(p []byte), onDisconnect func()) {
	defer func() {
		onDisconnect()
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error("websocket_read_error", err)
			} else {
				c.log.Debug("websocket_disconnect", "Client disconnected")
			}
			return
		}
		onMessage(msg)
	}
}

// Close is idempotent.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
		_ = c.conn.Close()
	}
}

// Handler upgrades HTTP requests and authenticates the first message as a JWT.
type Handler struct {
	log          logger.Logger
	jwtManager   *auth.JWTManager
	onConnect    func(conn *Connection)
	allowedRoles []auth.Role
}

func NewHandler(log logger.Logger, jwtManager *auth.JWTManager, onConnect func(conn *Connection), allowedRoles ...auth.Role) *Handler {
	return &Handler{
		log:          log,
		jwtManager:   jwtManager,
		onConnect:    onConnect,
		allowedRoles: allowedRoles,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket_upgrade_failed", err)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(authTime))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		h.log.Warn("websocket_auth_timeout", err.Error())
		sendErrorAndClose(conn, "Authentication timeout")
		return
	}

	var req authRequest
	if err := json.Unmarshal(msg, &req); err != nil || req.Type != "auth" || req.Token == "" {
		h.log.Warn("websocket_auth_format_error", "Invalid auth message")
		sendErrorAndClose(conn, "Invalid authentication request format")
		return
	}

	claims, err := h.jwtManager.ParseToken(strings.TrimPrefix(req.Token, "Bearer "))
	if err != nil {
		h.log.Warn("websocket_auth_token_invalid", err.Error())
		sendErrorAndClose(conn, "Invalid or expired token")
		return
	}
	if !h.roleAllowed(claims.Role) {
		h.log.WithFields(logger.LogFields{
			"user_id":  claims.UserID,
			"got_role": string(claims.Role),
		}).Warn("websocket_auth_role_mismatch", "Role not allowed")
		sendErrorAndClose(conn, "Invalid or expired token")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	wsConn := newConnection(conn, h.log, claims)
	wsConn.log.Info("websocket_auth_success", "Client authenticated")
	go wsConn.writePump()
	go h.onConnect(wsConn)
}

func (h *Handler) roleAllowed(role auth.Role) bool {
	if len(h.allowedRoles) == 0 {
		return true
	}
	for _, r := range h.allowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

func sendErrorAndClose(conn *websocket.Conn, msg string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(wsErrorResponse{Type: "error", Message: msg})
	_ = conn.Close()
}
