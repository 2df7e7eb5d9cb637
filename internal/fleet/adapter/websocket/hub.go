package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/websocket"
)

const (
	MessageJoinBusRoom  = "join_bus_room"
	MessageLeaveBusRoom = "leave_bus_room"
	MessageBusUpdate    = "bus_update"
)

type connectionManager interface {
	AddConnection(conn *websocket.Connection)
	RemoveConnection(id string)
	Join(id, room string)
	Leave(id, room string)
	Broadcast(message interface{}) error
	SendToRoom(room string, message interface{}) error
}

// Envelope is the frame pushed to dashboard clients.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type clientMessage struct {
	Type  string `json:"type"`
	BusID int64  `json:"bus_id"`
}

// Hub fans vehicle notifications out to dashboard websocket clients.
type Hub struct {
	manager connectionManager
	log     logger.Logger
}

var _ domain.Notifier = (*Hub)(nil)

func NewHub(manager *websocket.Manager, log logger.Logger) *Hub {
	return &Hub{manager: manager, log: log}
}

// BusRoom names the room that follows one bus.
func BusRoom(vehicleID int64) string {
	return "bus:" + strconv.FormatInt(vehicleID, 10)
}

// Publish broadcasts n to every client and sends a bus_update to the bus room.
func (h *Hub) Publish(_ context.Context, n domain.VehicleNotification) error {
	errAll := h.manager.Broadcast(Envelope{Type: n.Type, Data: n})
	errRoom := h.manager.SendToRoom(BusRoom(n.VehicleID), Envelope{Type: MessageBusUpdate, Data: n})
	if err := errors.Join(errAll, errRoom); err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	return nil
}

// OnConnect registers an authenticated client and serves its room requests
// until it disconnects.
func (h *Hub) OnConnect(conn *websocket.Connection) {
	h.manager.AddConnection(conn)
	conn.ReadPump(
		func(p []byte) { h.HandleClientMessage(conn.ID, p) },
		func() { h.manager.RemoveConnection(conn.ID) },
	)
}

// HandleClientMessage applies a join or leave request. Anything else is ignored.
func (h *Hub) HandleClientMessage(connID string, payload []byte) {
	var msg clientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.log.WithFields(logger.LogFields{"conn_id": connID}).Debug("websocket_message_invalid", err.Error())
		return
	}
	if msg.BusID <= 0 {
		return
	}

	switch msg.Type {
	case MessageJoinBusRoom:
		h.manager.Join(connID, BusRoom(msg.BusID))
	case MessageLeaveBusRoom:
		h.manager.Leave(connID, BusRoom(msg.BusID))
	default:
		h.log.WithFields(logger.LogFields{"conn_id": connID, "type": msg.Type}).Debug("websocket_message_ignored", "Unknown message type")
	}
}
