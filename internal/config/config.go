// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pose is an initial robot pose in meters/degrees.
type Pose struct {
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Heading float64 `yaml:"heading"`
}

// RobotGroup declares a group of identical simulated robots.
type RobotGroup struct {
	Name      string `yaml:"name"`
	Model     string `yaml:"model"`
	Count     int    `yaml:"count"`
	StartPose Pose   `yaml:"start_pose"`
}

// BrokerConfig configures the MQTT bridge.
type BrokerConfig struct {
	URL              string `yaml:"url"`
	ClientID         string `yaml:"client_id"`
	PublishEveryMS   int    `yaml:"publish_every_ms"`
	BackoffInitialMS int    `yaml:"backoff_initial_ms"`
	BackoffMaxMS     int    `yaml:"backoff_max_ms"`
}

// BroadcastConfig configures the WebSocket fan-out.
type BroadcastConfig struct {
	QueueSize           int `yaml:"queue_size"`
	HeartbeatIntervalMS int `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMS  int `yaml:"heartbeat_timeout_ms"`
}

// UpdateConfig configures the OTA update coordinator.
type UpdateConfig struct {
	ProgressPerStep float64 `yaml:"progress_per_step"`
	StepIntervalMS  int     `yaml:"step_interval_ms"`
	FailureRate     float64 `yaml:"failure_rate"`
	HistoryCapacity int     `yaml:"history_capacity"`
}

// Tuning holds the simulation-tuning constants. These produce plausible
// demo behavior and carry no physical meaning beyond that.
type Tuning struct {
	CommandTimeoutMS  int     `yaml:"command_timeout_ms"`
	RateLimitWindowMS int     `yaml:"rate_limit_window_ms"`
	RateLimitBurst    int     `yaml:"rate_limit_burst"`
	BatteryWeight     float64 `yaml:"battery_weight"`
	ThermalWeight     float64 `yaml:"thermal_weight"`
	ResourceWeight    float64 `yaml:"resource_weight"`
	BatteryHealthWarn float64 `yaml:"battery_health_warn"`
	MotorTempAlert    float64 `yaml:"motor_temp_alert"`
	MemoryWarn        float64 `yaml:"memory_warn"`
	CycleLimit        int     `yaml:"cycle_limit"`
}

// SimulationConfig is the root configuration for the robot fleet.
type SimulationConfig struct {
	FleetID          string          `yaml:"fleet_id"`
	Robots           []RobotGroup    `yaml:"robots"`
	Broker           BrokerConfig    `yaml:"broker"`
	Broadcast        BroadcastConfig `yaml:"broadcast"`
	Update           UpdateConfig    `yaml:"update"`
	Tuning           Tuning          `yaml:"tuning"`
	PathLogCapacity  int             `yaml:"path_log_capacity"`
	EventLogCapacity int             `yaml:"event_log_capacity"`
	Seed             int64           `yaml:"seed"`
}

// Load reads a YAML config, validates it against the CUE schema, and
// applies defaults for anything unset.
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg SimulationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if len(cfg.Robots) == 0 {
		return nil, fmt.Errorf("no robots defined in %s", configPath)
	}
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with the reference constants.
func (c *SimulationConfig) ApplyDefaults() {
	if c.FleetID == "" {
		c.FleetID = "fleet-01"
	}
	if c.Broker.ClientID == "" {
		c.Broker.ClientID = "robosim"
	}
	if c.Broker.PublishEveryMS <= 0 {
		c.Broker.PublishEveryMS = 150
	}
	if c.Broker.BackoffInitialMS <= 0 {
		c.Broker.BackoffInitialMS = 500
	}
	if c.Broker.BackoffMaxMS <= 0 {
		c.Broker.BackoffMaxMS = 30000
	}
	if c.Broadcast.QueueSize <= 0 {
		c.Broadcast.QueueSize = 64
	}
	if c.Broadcast.HeartbeatIntervalMS <= 0 {
		c.Broadcast.HeartbeatIntervalMS = 5000
	}
	if c.Broadcast.HeartbeatTimeoutMS <= 0 {
		c.Broadcast.HeartbeatTimeoutMS = 10000
	}
	if c.Update.ProgressPerStep <= 0 {
		c.Update.ProgressPerStep = 5
	}
	if c.Update.StepIntervalMS <= 0 {
		c.Update.StepIntervalMS = 500
	}
	if c.Update.HistoryCapacity <= 0 {
		c.Update.HistoryCapacity = 100
	}
	if c.Tuning.CommandTimeoutMS <= 0 {
		c.Tuning.CommandTimeoutMS = 2000
	}
	if c.Tuning.RateLimitWindowMS <= 0 {
		c.Tuning.RateLimitWindowMS = 100
	}
	if c.Tuning.RateLimitBurst <= 0 {
		c.Tuning.RateLimitBurst = 20
	}
	if c.Tuning.BatteryWeight <= 0 {
		c.Tuning.BatteryWeight = 0.4
	}
	if c.Tuning.ThermalWeight <= 0 {
		c.Tuning.ThermalWeight = 0.3
	}
	if c.Tuning.ResourceWeight <= 0 {
		c.Tuning.ResourceWeight = 0.3
	}
	if c.Tuning.BatteryHealthWarn <= 0 {
		c.Tuning.BatteryHealthWarn = 80
	}
	if c.Tuning.MotorTempAlert <= 0 {
		c.Tuning.MotorTempAlert = 70
	}
	if c.Tuning.MemoryWarn <= 0 {
		c.Tuning.MemoryWarn = 90
	}
	if c.Tuning.CycleLimit <= 0 {
		c.Tuning.CycleLimit = 10000
	}
	if c.PathLogCapacity <= 0 {
		c.PathLogCapacity = 5000
	}
	if c.EventLogCapacity <= 0 {
		c.EventLogCapacity = 10000
	}
}
