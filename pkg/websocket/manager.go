package websocket

import (
	"encoding/json"
	"sync"

	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/metrics"
)

// Manager tracks dashboard connections and the rooms they joined.
type Manager struct {
	connections map[string]*Connection         // conn id -> connection
	rooms       map[string]map[string]struct{} // room -> conn ids
	mu          sync.RWMutex
	log         logger.Logger
}

func NewManager(log logger.Logger) *Manager {
	return &Manager{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]struct{}),
		log:         log,
	}
}

func (m *Manager) AddConnection(conn *Connection) {
	m.mu.Lock()
	m.connections[conn.ID] = conn
	total := len(m.connections)
	m.mu.Unlock()

	metrics.WebsocketConnections.Inc()
	m.log.WithFields(logger.LogFields{
		"conn_id": conn.ID,
		"total":   total,
	}).Info("websocket_connected", "New connection added")
}

// RemoveConnection closes the connection and drops it from every room.
func (m *Manager) RemoveConnection(id string) {
	m.mu.Lock()
	conn, ok := m.connections[id]
	if ok {
		delete(m.connections, id)
		for room, members := range m.rooms {
			delete(members, id)
			if len(members) == 0 {
				delete(m.rooms, room)
			}
		}
	}
	total := len(m.connections)
	m.mu.Unlock()

	if !ok {
		return
	}
	conn.Close()
	metrics.WebsocketConnections.Dec()
	m.log.WithFields(logger.LogFields{
		"conn_id": id,
		"total":   total,
	}).Info("websocket_disconnected", "Connection removed")
}

func (m *Manager) Join(id, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[id]; !ok {
		return
	}
	members, ok := m.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		m.rooms[room] = members
	}
	members[id] = struct{}{}
}

func (m *Manager) Leave(id, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if members, ok := m.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
}

// Broadcast sends message to every connection.
func (m *Manager) Broadcast(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	m.mu.RLock()
	targets := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		targets = append(targets, conn)
	}
	m.mu.RUnlock()

	m.deliver(targets, data)
	return nil
}

// SendToRoom sends message to the members of room.
func (m *Manager) SendToRoom(room string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	m.mu.RLock()
	members := m.rooms[room]
	targets := make([]*Connection, 0, len(members))
	for id := range members {
		if conn, ok := m.connections[id]; ok {
			targets = append(targets, conn)
		}
	}
	m.mu.RUnlock()

	m.deliver(targets, data)
	return nil
}

func (m *Manager) deliver(targets []*Connection, data []byte) {
	for _, conn := range targets {
		switch err := conn.WriteRaw(data); err {
		case nil:
		case ErrConnectionClosed:
			m.RemoveConnection(conn.ID)
		default:
			m.log.WithFields(logger.LogFields{"conn_id": conn.ID}).Warn("websocket_send_dropped", err.Error())
		}
	}
}

func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *Manager) RoomSize(room string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[room])
}
