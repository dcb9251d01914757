// Package config loads and validates the mission kernel's configuration:
// broker/GCS endpoints, health thresholds, the drone roster, and the
// search/flight strategy parameters from SPEC_FULL.md §6. Layout follows the
// teacher's config.Default()/Validate()/ServerAddr() pattern, generalized
// from a single ServerConfig to the full option table.
package config

import (
	"fmt"
	"time"

	"github.com/skyward-ops/mobfleet/internal/model"
)

type MQTTConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c MQTTConfig) Addr() string { return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port) }

type GCSConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

func (c GCSConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

type HealthConfig struct {
	MinBatteryPreflight float64       `yaml:"min_battery_preflight"`
	MinBatteryEmergency float64       `yaml:"min_battery_emergency"`
	MinBatteryPatrolRTL float64       `yaml:"min_battery_patrol_rtl"`
	MaxHeartbeatLatency time.Duration `yaml:"max_heartbeat_latency"`
}

// DroneType selects which flightctl.Controller implementation an agent uses.
type DroneType string

const (
	DroneSimulated DroneType = "simulated"
	DroneReal      DroneType = "real"
)

// DroneConfig is one entry of the fleet roster.
type DroneConfig struct {
	ID   string    `yaml:"id"`
	Type DroneType `yaml:"type"`
	Role model.Role `yaml:"role"`
	// Connection parameters, used only when Type == DroneReal.
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

type SearchAreaConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type SearchStrategyConfig struct {
	Algorithm string           `yaml:"algorithm"` // vertical_ascent | random | lawnmower | prob_search
	Area      SearchAreaConfig `yaml:"area"`
	SizeM     float64          `yaml:"size_m"`
}

type FlightStrategyConfig struct {
	Algorithm string `yaml:"algorithm"` // precision_hover | direct | orbit
}

type LawnmowerConfig struct {
	PatrolAltitude float64 `yaml:"patrol_altitude"`
	Spacing        float64 `yaml:"spacing"`
	LegLength      float64 `yaml:"leg_length"`
	NumLegs        int     `yaml:"num_legs"`
}

type OrbitConfig struct {
	Radius         float64 `yaml:"radius"`
	Speed          float64 `yaml:"speed"`
	AltitudeOffset float64 `yaml:"altitude_offset"`
}

type PrecisionHoverConfig struct {
	AltitudeOffset float64 `yaml:"altitude_offset"`
}

type ProbSearchConfig struct {
	GridSize          int     `yaml:"grid_size"`
	SearchAreaSizeM   float64 `yaml:"search_area_size_m"`
	SearchAltitude    float64 `yaml:"search_altitude"`
	RMax              float64 `yaml:"r_max"`
	HRef              float64 `yaml:"h_ref"`
	MissProbability   float64 `yaml:"miss_probability"`
	EvolveIntervalS   float64 `yaml:"evolve_interval_s"`
	WaypointIntervalS float64 `yaml:"waypoint_interval_s"`
	DriftXMS          float64 `yaml:"drift_x_m_s"`
	DriftYMS          float64 `yaml:"drift_y_m_s"`
}

type SatelliteConfig struct {
	Enabled      bool   `yaml:"enabled"`
	UplinkPrefix string `yaml:"uplink_prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"` // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text"
}

// Config holds all mission kernel configuration.
type Config struct {
	MQTT           MQTTConfig           `yaml:"mqtt"`
	GCS            GCSConfig            `yaml:"gcs"`
	Health         HealthConfig         `yaml:"health"`
	Drones         []DroneConfig        `yaml:"drones"`
	Search         SearchStrategyConfig `yaml:"strategies_search"`
	Flight         FlightStrategyConfig `yaml:"strategies_flight"`
	Lawnmower      LawnmowerConfig      `yaml:"lawnmower"`
	Orbit          OrbitConfig          `yaml:"orbit"`
	PrecisionHover PrecisionHoverConfig `yaml:"precision_hover"`
	ProbSearch     ProbSearchConfig     `yaml:"prob_search"`
	Satellite      SatelliteConfig      `yaml:"satellite"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// Default returns a Config with sensible defaults for local/simulated runs.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{Host: "localhost", Port: 1883},
		GCS: GCSConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Health: HealthConfig{
			MinBatteryPreflight: 30,
			MinBatteryEmergency: 10,
			MinBatteryPatrolRTL: 25,
			MaxHeartbeatLatency: 5 * time.Second,
		},
		Drones: []DroneConfig{
			{ID: "scout_1", Type: DroneSimulated, Role: model.RoleScout},
			{ID: "payload_1", Type: DroneSimulated, Role: model.RolePayload},
			{ID: "utility_1", Type: DroneSimulated, Role: model.RoleUtility},
		},
		Search: SearchStrategyConfig{
			Algorithm: "random",
			Area:      SearchAreaConfig{X: 0, Y: 0, Z: 0},
			SizeM:     1000,
		},
		Flight: FlightStrategyConfig{Algorithm: "direct"},
		Lawnmower: LawnmowerConfig{
			PatrolAltitude: 40,
			Spacing:        20,
			LegLength:      200,
			NumLegs:        5,
		},
		Orbit:          OrbitConfig{Radius: 15, Speed: 3, AltitudeOffset: 10},
		PrecisionHover: PrecisionHoverConfig{AltitudeOffset: 5},
		ProbSearch: ProbSearchConfig{
			GridSize:          100,
			SearchAreaSizeM:   1000,
			SearchAltitude:    50,
			RMax:              80,
			HRef:              30,
			MissProbability:   0.1,
			EvolveIntervalS:   5,
			WaypointIntervalS: 10,
			DriftXMS:          0,
			DriftYMS:          0,
		},
		Satellite: SatelliteConfig{Enabled: false, UplinkPrefix: "global_hq/uplink/"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate checks if the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.GCS.Port < 1 || c.GCS.Port > 65535 {
		return fmt.Errorf("invalid gcs port: %d", c.GCS.Port)
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("invalid mqtt port: %d", c.MQTT.Port)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.ProbSearch.GridSize <= 0 {
		return fmt.Errorf("invalid prob_search.grid_size: %d", c.ProbSearch.GridSize)
	}
	if len(c.Drones) == 0 {
		return fmt.Errorf("no drones configured")
	}

	seen := make(map[string]bool, len(c.Drones))
	for _, d := range c.Drones {
		if d.ID == "" {
			return fmt.Errorf("drone entry missing id")
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate drone id: %s", d.ID)
		}
		seen[d.ID] = true

		switch d.Role {
		case model.RoleScout, model.RolePayload, model.RoleUtility:
		default:
			return fmt.Errorf("drone %s: invalid role %q", d.ID, d.Role)
		}
		switch d.Type {
		case DroneSimulated, DroneReal:
		default:
			return fmt.Errorf("drone %s: invalid type %q", d.ID, d.Type)
		}
	}
	return nil
}

// GCSAddr returns the GCS server address as host:port.
func (c *Config) GCSAddr() string { return c.GCS.Addr() }

// FindDrone finds a drone by ID.
func (c *Config) FindDrone(id string) (*DroneConfig, error) {
	for i := range c.Drones {
		if c.Drones[i].ID == id {
			return &c.Drones[i], nil
		}
	}
	return nil, fmt.Errorf("drone not found: %s", id)
}
