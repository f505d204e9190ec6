package realtime

import (
	"encoding/json"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/internal/models"
	"github.com/sensorgrid/iot-core/internal/observability"
)

// Broadcaster is the one-directional push surface other components use to
// mirror state changes to connected operator sessions. Every method no-ops
// cleanly when the target rooms have no subscribers.
type Broadcaster interface {
	BroadcastTelemetry(deviceID string, record *models.TelemetryRecord)
	BroadcastAlarm(alarm *models.Alarm)
	BroadcastCommandStatus(deviceID, commandID, status, message string)
	BroadcastDeviceStatus(deviceID, clientID, status string)
	BroadcastCreditAlert(clientID string, payload map[string]interface{})
	BroadcastNotification(clientID string, payload map[string]interface{})
	BroadcastSystemStats(stats interface{})
}

// StatsProvider supplies the introspection snapshot answered to
// system:stats requests.
type StatsProvider func() interface{}

// Hub owns the connection table and room membership. No other component
// reaches into either; all mutation goes through Hub methods.
type Hub struct {
	connections cmap.ConcurrentMap[string, *Connection]

	roomsMu sync.RWMutex
	rooms   map[string]map[string]*Connection // room -> connection id -> connection
	member  map[string]map[string]struct{}    // connection id -> joined rooms

	statsProvider StatsProvider
	logger        zerolog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		connections: cmap.New[*Connection](),
		rooms:       make(map[string]map[string]*Connection),
		member:      make(map[string]map[string]struct{}),
		logger:      logger.With().Str("component", "realtime").Logger(),
	}
}

// SetStatsProvider wires the introspection snapshot source.
func (h *Hub) SetStatsProvider(provider StatsProvider) {
	h.statsProvider = provider
}

// register adds an authenticated connection and joins its default rooms:
// the tenant room always, the monitor room for privileged roles.
func (h *Hub) register(c *Connection) {
	h.connections.Set(c.ID, c)
	observability.RealtimeConnections.Set(float64(h.connections.Count()))

	if c.ClientID != "" {
		h.joinRoom(c, clientRoom(c.ClientID))
	}
	if c.privileged() {
		h.joinRoom(c, systemMonitorRoom)
	}
	h.logger.Info().Str("connection_id", c.ID).Str("user_id", c.UserID).
		Str("role", c.Role).Msg("Realtime session connected")
}

// unregister removes a connection from the table and every room.
func (h *Hub) unregister(c *Connection) {
	h.connections.Remove(c.ID)
	observability.RealtimeConnections.Set(float64(h.connections.Count()))

	h.roomsMu.Lock()
	for room := range h.member[c.ID] {
		if members, ok := h.rooms[room]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.member, c.ID)
	h.roomsMu.Unlock()

	h.logger.Info().Str("connection_id", c.ID).Msg("Realtime session disconnected")
}

func (h *Hub) joinRoom(c *Connection, room string) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Connection)
	}
	h.rooms[room][c.ID] = c

	if h.member[c.ID] == nil {
		h.member[c.ID] = make(map[string]struct{})
	}
	h.member[c.ID][room] = struct{}{}
}

func (h *Hub) leaveRoom(c *Connection, room string) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.member[c.ID], room)
}

// handleMessage dispatches one client message. Unauthorized or malformed
// requests get an error event back; the connection stays up.
func (h *Hub) handleMessage(c *Connection, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendError(c, "malformed message")
		return
	}

	switch msg.Type {
	case constants.EventTelemetrySubscribe:
		h.handleTelemetrySubscribe(c, msg.Payload)
	case constants.EventTelemetryUnsubscribe:
		h.handleTelemetryUnsubscribe(c, msg.Payload)
	case constants.EventAlarmsSubscribe:
		h.handleAlarmsSubscribe(c, msg.Payload)
	case constants.EventSystemStats:
		h.handleSystemStats(c)
	default:
		h.sendError(c, "unknown message type: "+msg.Type)
	}
}

func (h *Hub) handleTelemetrySubscribe(c *Connection, payload json.RawMessage) {
	var req telemetrySubscribeRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			h.sendError(c, "malformed telemetry:subscribe payload")
			return
		}
	}

	if req.All {
		if !c.privileged() {
			h.sendError(c, "subscribing to all devices requires an elevated role")
			return
		}
		h.joinRoom(c, allDevicesRoom)
		return
	}

	if len(req.DeviceIDs) == 0 {
		h.sendError(c, "telemetry:subscribe needs device_ids or all")
		return
	}
	for _, id := range req.DeviceIDs {
		h.joinRoom(c, deviceRoom(id))
	}
}

func (h *Hub) handleTelemetryUnsubscribe(c *Connection, payload json.RawMessage) {
	var req telemetrySubscribeRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			h.sendError(c, "malformed telemetry:unsubscribe payload")
			return
		}
	}

	if req.All {
		h.leaveRoom(c, allDevicesRoom)
	}
	for _, id := range req.DeviceIDs {
		h.leaveRoom(c, deviceRoom(id))
	}
}

func (h *Hub) handleAlarmsSubscribe(c *Connection, payload json.RawMessage) {
	var req alarmsSubscribeRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			h.sendError(c, "malformed alarms:subscribe payload")
			return
		}
	}

	if len(req.Severities) == 0 {
		h.joinRoom(c, alarmRoom(c.ClientID))
		return
	}
	for _, severity := range req.Severities {
		h.joinRoom(c, alarmSeverityRoom(c.ClientID, severity))
	}
}

func (h *Hub) handleSystemStats(c *Connection) {
	if !c.privileged() {
		h.sendError(c, "system:stats requires an elevated role")
		return
	}
	var payload interface{}
	if h.statsProvider != nil {
		payload = h.statsProvider()
	}
	h.sendEvent(c, Event{Type: constants.EventSystemStats, Payload: payload, Timestamp: time.Now().UTC()})
}

// BroadcastTelemetry pushes a canonical record to the device room and the
// privileged all-devices room.
func (h *Hub) BroadcastTelemetry(deviceID string, record *models.TelemetryRecord) {
	h.broadcast(Event{
		Type:      constants.EventTelemetryData,
		Payload:   record,
		Timestamp: time.Now().UTC(),
	}, deviceRoom(deviceID), allDevicesRoom)
}

// BroadcastAlarm pushes a new alarm to its tenant and severity rooms.
func (h *Hub) BroadcastAlarm(alarm *models.Alarm) {
	h.broadcast(Event{
		Type:      constants.EventAlarmNew,
		Payload:   alarm,
		Timestamp: time.Now().UTC(),
	}, alarmRoom(alarm.ClientID), alarmSeverityRoom(alarm.ClientID, alarm.Severity), clientRoom(alarm.ClientID))
}

// BroadcastCommandStatus pushes a command state change to the device room.
func (h *Hub) BroadcastCommandStatus(deviceID, commandID, status, message string) {
	h.broadcast(Event{
		Type: constants.EventCommandStatusUpdate,
		Payload: map[string]interface{}{
			"device_id":  deviceID,
			"command_id": commandID,
			"status":     status,
			"message":    message,
		},
		Timestamp: time.Now().UTC(),
	}, deviceRoom(deviceID), allDevicesRoom)
}

// BroadcastDeviceStatus pushes an online/offline change to the device room
// and its tenant room.
func (h *Hub) BroadcastDeviceStatus(deviceID, clientID, status string) {
	rooms := []string{deviceRoom(deviceID), allDevicesRoom}
	if clientID != "" {
		rooms = append(rooms, clientRoom(clientID))
	}
	h.broadcast(Event{
		Type: constants.EventDeviceStatus,
		Payload: map[string]interface{}{
			"device_id": deviceID,
			"status":    status,
		},
		Timestamp: time.Now().UTC(),
	}, rooms...)
}

// BroadcastCreditAlert pushes a credit warning to the tenant room.
func (h *Hub) BroadcastCreditAlert(clientID string, payload map[string]interface{}) {
	h.broadcast(Event{
		Type:      constants.EventCreditAlert,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}, clientRoom(clientID))
}

// BroadcastNotification pushes a generic notification to the tenant room.
func (h *Hub) BroadcastNotification(clientID string, payload map[string]interface{}) {
	h.broadcast(Event{
		Type:      constants.EventSystemNotification,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}, clientRoom(clientID))
}

// BroadcastSystemStats pushes a stats snapshot to the monitor room.
func (h *Hub) BroadcastSystemStats(stats interface{}) {
	h.broadcast(Event{
		Type:      constants.EventSystemStats,
		Payload:   stats,
		Timestamp: time.Now().UTC(),
	}, systemMonitorRoom)
}

// broadcast marshals an event once and offers it to every member of every
// target room. A connection subscribed to several qualifying rooms receives
// the event once per room: each room is a distinct audience.
func (h *Hub) broadcast(event Event, rooms ...string) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("Failed to marshal event")
		return
	}

	delivered := 0
	for _, room := range rooms {
		for _, c := range h.roomMembers(room) {
			c.enqueue(data)
			delivered++
		}
	}
	if delivered > 0 {
		observability.BroadcastsSent.Inc()
	}
}

// roomMembers snapshots a room's members so delivery happens outside the
// lock.
func (h *Hub) roomMembers(room string) []*Connection {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()

	members := h.rooms[room]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// sendEvent delivers an event to a single connection.
func (h *Hub) sendEvent(c *Connection, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("Failed to marshal event")
		return
	}
	c.enqueue(data)
}

func (h *Hub) sendError(c *Connection, message string) {
	h.sendEvent(c, Event{
		Type:      constants.EventError,
		Payload:   map[string]interface{}{"message": message},
		Timestamp: time.Now().UTC(),
	})
}

// ConnectionCount returns the number of live sessions.
func (h *Hub) ConnectionCount() int {
	return h.connections.Count()
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	for item := range h.connections.IterBuffered() {
		item.Val.close()
	}
	h.logger.Info().Msg("Realtime hub shut down")
}
