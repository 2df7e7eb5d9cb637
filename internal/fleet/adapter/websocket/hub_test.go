package websocket

import (
	"context"
	"errors"
	"testing"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/websocket"
)

type sent struct {
	room string
	msg  Envelope
}

type fakeManager struct {
	broadcasts []Envelope
	roomSends  []sent
	rooms      map[string]map[string]bool
	err        error
}

func newFakeManager() *fakeManager {
	return &fakeManager{rooms: map[string]map[string]bool{}}
}

func (f *fakeManager) AddConnection(*websocket.Connection) {}
func (f *fakeManager) RemoveConnection(string)             {}

func (f *fakeManager) Join(id, room string) {
	if f.rooms[room] == nil {
		f.rooms[room] = map[string]bool{}
	}
	f.rooms[room][id] = true
}

func (f *fakeManager) Leave(id, room string) { delete(f.rooms[room], id) }

func (f *fakeManager) Broadcast(m interface{}) error {
	f.broadcasts = append(f.broadcasts, m.(Envelope))
	return f.err
}

func (f *fakeManager) SendToRoom(room string, m interface{}) error {
	f.roomSends = append(f.roomSends, sent{room: room, msg: m.(Envelope)})
	return nil
}

func TestPublishBroadcastsAndTargetsRoom(t *testing.T) {
	mgr := newFakeManager()
	hub := &Hub{manager: mgr, log: logger.NewNop()}

	n := domain.VehicleNotification{Type: domain.NotificationBusLocation, VehicleID: 12}
	if err := hub.Publish(context.Background(), n); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(mgr.broadcasts) != 1 || mgr.broadcasts[0].Type != "bus_location" {
		t.Errorf("broadcasts = %+v", mgr.broadcasts)
	}
	if len(mgr.roomSends) != 1 || mgr.roomSends[0].room != "bus:12" || mgr.roomSends[0].msg.Type != MessageBusUpdate {
		t.Errorf("room sends = %+v", mgr.roomSends)
	}
}

func TestPublishReportsManagerError(t *testing.T) {
	mgr := newFakeManager()
	mgr.err = errors.New("marshal failed")
	hub := &Hub{manager: mgr, log: logger.NewNop()}

	err := hub.Publish(context.Background(), domain.VehicleNotification{Type: domain.NotificationStatusChanged, VehicleID: 1})
	if !errors.Is(err, mgr.err) {
		t.Errorf("err = %v", err)
	}
	if len(mgr.roomSends) != 1 {
		t.Error("room send should still happen when the broadcast fails")
	}
}

func TestHandleClientMessage(t *testing.T) {
	mgr := newFakeManager()
	hub := &Hub{manager: mgr, log: logger.NewNop()}

	hub.HandleClientMessage("c1", []byte(`{"type":"join_bus_room","bus_id":5}`))
	hub.HandleClientMessage("c2", []byte(`{"type":"join_bus_room","bus_id":5}`))
	if len(mgr.rooms["bus:5"]) != 2 {
		t.Fatalf("room members = %v", mgr.rooms["bus:5"])
	}

	hub.HandleClientMessage("c1", []byte(`{"type":"leave_bus_room","bus_id":5}`))
	if mgr.rooms["bus:5"]["c1"] || !mgr.rooms["bus:5"]["c2"] {
		t.Errorf("after leave = %v", mgr.rooms["bus:5"])
	}

	hub.HandleClientMessage("c3", []byte(`not json`))
	hub.HandleClientMessage("c3", []byte(`{"type":"join_bus_room","bus_id":0}`))
	hub.HandleClientMessage("c3", []byte(`{"type":"dance","bus_id":5}`))
	if mgr.rooms["bus:5"]["c3"] {
		t.Error("invalid messages must not join rooms")
	}
}
