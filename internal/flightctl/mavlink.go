package flightctl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/skyward-ops/mobfleet/internal/model"
)

// Position setpoint type mask bits (adapted from the teacher's
// internal/mavlink/client.go POSITION_TARGET_TYPEMASK_* constants; the bits
// are frame-agnostic, so the same mask works for the LOCAL_NED setpoint this
// controller sends instead of the teacher's GLOBAL_INT one).
const (
	typeMaskVXIgnore   = 0b0000000000001000
	typeMaskVYIgnore   = 0b0000000000010000
	typeMaskVZIgnore   = 0b0000000000100000
	typeMaskAXIgnore   = 0b0000000001000000
	typeMaskAYIgnore   = 0b0000000010000000
	typeMaskAZIgnore   = 0b0000000100000000
	typeMaskYawIgnore  = 0b0000010000000000
	typeMaskYawRateIgn = 0b0000100000000000
)

// MAVLinkController drives real flight hardware over a serial MAVLink link.
// The mission kernel's Position is a local planar (X east, Y north, Z up)
// frame, sent via SET_POSITION_TARGET_LOCAL_NED rather than the teacher's
// GLOBAL_INT setpoint, since a man-overboard search grid has no reason to
// round-trip through geodetic coordinates.
type MAVLinkController struct {
	node   *gomavlib.Node
	logger *slog.Logger

	mu            sync.RWMutex
	systemID      uint8
	connected     bool
	armed         bool
	mode          model.VehicleMode
	lastHeartbeat time.Time
	telemetry     model.Telemetry
}

// Config holds MAVLink connection parameters for one drone.
type Config struct {
	Port     string
	BaudRate int
	Logger   *slog.Logger
}

// NewMAVLinkController opens a serial MAVLink node. The node starts
// listening immediately; Connect waits for the first heartbeat.
func NewMAVLinkController(cfg Config) (*MAVLinkController, error) {
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointSerial{Device: cfg.Port, Baud: cfg.BaudRate},
		},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: 255,
	})
	if err != nil {
		return nil, fmt.Errorf("creating mavlink node: %w", err)
	}

	c := &MAVLinkController{node: node, logger: cfg.Logger, mode: model.ModeDisarmed}
	go c.listen()
	return c, nil
}

func (c *MAVLinkController) listen() {
	for evt := range c.node.Events() {
		if frm, ok := evt.(*gomavlib.EventFrame); ok {
			c.handleMessage(frm.Message(), frm.SystemID())
		}
	}
}

func (c *MAVLinkController) handleMessage(msg message.Message, sysID uint8) {
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		c.handleHeartbeat(m, sysID)
	case *common.MessageLocalPositionNed:
		c.handleLocalPosition(m)
	case *common.MessageAttitude:
		c.handleAttitude(m)
	case *common.MessageSysStatus:
		c.handleSysStatus(m)
	case *common.MessageStatustext:
		c.logger.Warn("mavlink status text", "severity", m.Severity, "text", m.Text)
	}
}

func (c *MAVLinkController) handleHeartbeat(msg *common.MessageHeartbeat, sysID uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		c.logger.Info("mavlink connected", "system_id", sysID)
	}
	c.connected = true
	c.systemID = sysID
	c.lastHeartbeat = time.Now()
	c.armed = (msg.BaseMode & common.MAV_MODE_FLAG_SAFETY_ARMED) != 0
	if msg.BaseMode&common.MAV_MODE_FLAG_MANUAL_INPUT_ENABLED != 0 {
		c.mode = model.ModeManual
	}
}

func (c *MAVLinkController) handleLocalPosition(msg *common.MessageLocalPositionNed) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telemetry.Position = model.Position{X: float64(msg.Y), Y: float64(msg.X), Z: -float64(msg.Z)}
	c.telemetry.LastHeartbeat = time.Now()
}

func (c *MAVLinkController) handleAttitude(msg *common.MessageAttitude) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telemetry.Roll = float64(msg.Roll)
	c.telemetry.Pitch = float64(msg.Pitch)
	c.telemetry.Yaw = float64(msg.Yaw)
}

func (c *MAVLinkController) handleSysStatus(msg *common.MessageSysStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telemetry.BatteryPct = float64(msg.BatteryRemaining)
}

func (c *MAVLinkController) Connect(ctx context.Context) error {
	deadline := time.Now().Add(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.isConnected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return fmt.Errorf("timeout waiting for heartbeat")
			}
		}
	}
}

func (c *MAVLinkController) isConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && time.Since(c.lastHeartbeat) < 3*time.Second
}

func (c *MAVLinkController) Disconnect(ctx context.Context) error {
	c.node.Close()
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *MAVLinkController) targetSystem() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.systemID
}

func (c *MAVLinkController) Arm(ctx context.Context) error {
	return c.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem: c.targetSystem(), TargetComponent: 1,
		Command: common.MAV_CMD_COMPONENT_ARM_DISARM, Param1: 1,
	})
}

func (c *MAVLinkController) Disarm(ctx context.Context) error {
	return c.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem: c.targetSystem(), TargetComponent: 1,
		Command: common.MAV_CMD_COMPONENT_ARM_DISARM, Param1: 0,
	})
}

func (c *MAVLinkController) Takeoff(ctx context.Context, altitude float64) error {
	return c.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem: c.targetSystem(), TargetComponent: 1,
		Command: common.MAV_CMD_NAV_TAKEOFF, Param7: float32(altitude),
	})
}

func (c *MAVLinkController) GoTo(ctx context.Context, pos model.Position, speed float64) error {
	typeMask := uint16(typeMaskVXIgnore | typeMaskVYIgnore | typeMaskVZIgnore |
		typeMaskAXIgnore | typeMaskAYIgnore | typeMaskAZIgnore |
		typeMaskYawIgnore | typeMaskYawRateIgn)

	return c.node.WriteMessageAll(&common.MessageSetPositionTargetLocalNed{
		TargetSystem:    c.targetSystem(),
		TargetComponent: 1,
		TimeBootMs:      uint32(time.Now().UnixMilli()),
		CoordinateFrame: common.MAV_FRAME_LOCAL_NED,
		TypeMask:        common.POSITION_TARGET_TYPEMASK(typeMask),
		X:               float32(pos.Y),
		Y:               float32(pos.X),
		Z:               float32(-pos.Z),
	})
}

func (c *MAVLinkController) Land(ctx context.Context) error {
	return c.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem: c.targetSystem(), TargetComponent: 1,
		Command: common.MAV_CMD_NAV_LAND,
	})
}

func (c *MAVLinkController) ReturnToHome(ctx context.Context) error {
	return c.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem: c.targetSystem(), TargetComponent: 1,
		Command: common.MAV_CMD_NAV_RETURN_TO_LAUNCH,
	})
}

// SetLED has no MAVLink standard equivalent on stock PX4 firmware; this
// sends MAV_CMD_USER_1, the vendor-defined slot flight controllers reserve
// for payload/peripheral commands like an indicator LED.
func (c *MAVLinkController) SetLED(ctx context.Context, color model.LEDColor) error {
	var code float32
	switch color {
	case model.LEDGreen:
		code = 1
	case model.LEDRed:
		code = 2
	case model.LEDYellow:
		code = 3
	case model.LEDBlue:
		code = 4
	default:
		code = 0
	}
	return c.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem: c.targetSystem(), TargetComponent: 1,
		Command: common.MAV_CMD_USER_1, Param1: code,
	})
}

func (c *MAVLinkController) Telemetry() model.Telemetry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := c.telemetry
	t.Mode = c.mode
	t.Connected = c.connected
	return t
}

func (c *MAVLinkController) IsArmable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
