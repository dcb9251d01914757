package gcs

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/skyward-ops/mobfleet/internal/coordinator"
	"github.com/skyward-ops/mobfleet/internal/model"
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.hub.add(conn)
	conn.WriteJSON(coordinator.Frame{Type: "fleet_snapshot", Data: s.sink.Roster()})

	defer func() {
		s.hub.remove(conn)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.dispatchInbound(raw)
	}
}

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type droneTarget struct {
	DroneID string `json:"drone_id"`
}

type overwatchTarget struct {
	Position model.Position `json:"position"`
}

// dispatchInbound handles one operator WebSocket frame, per spec.md §4.6:
// malformed JSON is logged and the connection kept, and any type outside the
// recognized set is logged and ignored.
func (s *Server) dispatchInbound(raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.logger.Warn("malformed websocket frame", "error", err)
		return
	}

	switch frame.Type {
	case "TRIGGER_MOB_MODE":
		s.sink.TriggerMOBMode()
	case "TRIGGER_PATROL_MODE":
		s.sink.TriggerPatrolMode()
	case "CONFIRM_TARGET":
		var d droneTarget
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			s.logger.Warn("malformed CONFIRM_TARGET data", "error", err)
			return
		}
		s.sink.ConfirmTarget(d.DroneID)
	case "REJECT_TARGET":
		var d droneTarget
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			s.logger.Warn("malformed REJECT_TARGET data", "error", err)
			return
		}
		s.sink.RejectTarget(d.DroneID)
	case "TRIGGER_OVERWATCH_MODE":
		var d overwatchTarget
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			s.logger.Warn("malformed TRIGGER_OVERWATCH_MODE data", "error", err)
			return
		}
		s.sink.TriggerOverwatchMode(d.Position)
	default:
		s.logger.Warn("ignoring unrecognized websocket frame type", "type", frame.Type)
	}
}

// Broadcast implements coordinator.Broadcaster.
func (s *Server) Broadcast(frame coordinator.Frame) {
	s.hub.broadcast(frame)
}

// StartVideoStream implements coordinator.Broadcaster.
func (s *Server) StartVideoStream(droneID string) {
	s.hub.startStream(droneID)
}

// StopVideoStream implements coordinator.Broadcaster.
func (s *Server) StopVideoStream(droneID string) {
	s.hub.stopStream(droneID)
}

// VideoFrame is the narrow interface an external camera/video pipeline (out
// of scope per spec.md's "video recording/encoding" exclusion) calls through
// to fan out one JPEG frame. Per spec.md §4.6, it only encodes when at least
// one client is connected and the named drone's stream is active.
func (s *Server) VideoFrame(droneID string, jpeg []byte) {
	if s.hub.count() == 0 || !s.hub.isStreaming(droneID) {
		return
	}
	s.hub.broadcast(coordinator.Frame{Type: "video_frame", Data: map[string]any{
		"drone_id": droneID,
		"jpeg":     base64.StdEncoding.EncodeToString(jpeg),
	}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
