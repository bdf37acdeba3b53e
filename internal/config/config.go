package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ModeGPS    = "gps"
	ModeSim    = "sim"
	ModeReplay = "replay"
)

type Config struct {
	Source    SourceConfig    `yaml:"source"`
	GPS       GPSConfig       `yaml:"gps"`
	Sim       SimConfig       `yaml:"sim"`
	Replay    ReplayConfig    `yaml:"replay"`
	Record    RecordConfig    `yaml:"record"`
	UDP       UDPConfig       `yaml:"udp"`
	Web       WebConfig       `yaml:"web"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Log       LogConfig       `yaml:"log"`
}

type SourceConfig struct {
	Mode string `yaml:"mode"`
}

type GPSConfig struct {
	Source   string `yaml:"source"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	GPSDAddr string `yaml:"gpsd_addr"`
	TCPAddr  string `yaml:"tcp_addr"`
}

type SimConfig struct {
	Scenario string         `yaml:"scenario"`
	Interval time.Duration  `yaml:"interval"`
	Loop     bool           `yaml:"loop"`
	Orbit    OrbitSimConfig `yaml:"orbit"`
}

type OrbitSimConfig struct {
	CenterLatDeg      float64       `yaml:"center_lat_deg"`
	CenterLonDeg      float64       `yaml:"center_lon_deg"`
	RadiusM           float64       `yaml:"radius_m"`
	Period            time.Duration `yaml:"period"`
	AccuracyM         float64       `yaml:"accuracy_m"`
	CourseAccuracyDeg float64       `yaml:"course_accuracy_deg"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type UDPConfig struct {
	Enable   bool   `yaml:"enable"`
	Dest     string `yaml:"dest"`
	Format   string `yaml:"format"`   // nmea | gdl90
	ICAO     string `yaml:"icao"`     // gdl90 ownship address, 6 hex chars
	Callsign string `yaml:"callsign"` // gdl90 ownship callsign
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type IndicatorConfig struct {
	Enable       bool          `yaml:"enable"`
	Pin          int           `yaml:"pin"`
	MaxAccuracyM float64       `yaml:"max_accuracy_m"`
	StaleAfter   time.Duration `yaml:"stale_after"`
}

type LogConfig struct {
	Prefix       string `yaml:"prefix"`
	Microseconds bool   `yaml:"microseconds"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() error {
	switch cfg.Source.Mode {
	case "":
		cfg.Source.Mode = ModeSim
	case ModeGPS, ModeSim, ModeReplay:
	default:
		return fmt.Errorf("source.mode must be one of gps, sim, replay (got %q)", cfg.Source.Mode)
	}

	// GPS defaults (safe even if unused).
	switch cfg.GPS.Source {
	case "":
		cfg.GPS.Source = "nmea"
	case "nmea", "gpsd", "tcp":
	default:
		return fmt.Errorf("gps.source must be nmea, gpsd or tcp (got %q)", cfg.GPS.Source)
	}
	if cfg.Source.Mode == ModeGPS && cfg.GPS.Source == "tcp" && cfg.GPS.TCPAddr == "" {
		return fmt.Errorf("gps.tcp_addr is required when gps.source is 'tcp'")
	}
	if cfg.GPS.Baud <= 0 {
		cfg.GPS.Baud = 9600
	}
	if cfg.GPS.GPSDAddr == "" {
		cfg.GPS.GPSDAddr = "127.0.0.1:2947"
	}

	// Simulator defaults.
	if cfg.Sim.Interval <= 0 {
		cfg.Sim.Interval = 1 * time.Second
	}
	if cfg.Sim.Orbit.Period <= 0 {
		cfg.Sim.Orbit.Period = 120 * time.Second
	}
	if cfg.Sim.Orbit.RadiusM <= 0 {
		cfg.Sim.Orbit.RadiusM = 500
	}
	if cfg.Sim.Orbit.AccuracyM <= 0 {
		cfg.Sim.Orbit.AccuracyM = 5
	}
	if cfg.Sim.Orbit.CourseAccuracyDeg <= 0 {
		cfg.Sim.Orbit.CourseAccuracyDeg = 2
	}
	if cfg.Sim.Orbit.CenterLatDeg < -90 || cfg.Sim.Orbit.CenterLatDeg > 90 {
		return fmt.Errorf("sim.orbit.center_lat_deg must be within [-90, 90]")
	}
	if cfg.Sim.Orbit.CenterLonDeg < -180 || cfg.Sim.Orbit.CenterLonDeg > 180 {
		return fmt.Errorf("sim.orbit.center_lon_deg must be within [-180, 180]")
	}

	if cfg.Source.Mode == ModeReplay {
		if cfg.Replay.Path == "" {
			return fmt.Errorf("replay.path is required when source.mode is 'replay'")
		}
		if cfg.Replay.Speed == 0 {
			cfg.Replay.Speed = 1
		}
		if cfg.Replay.Speed < 0 {
			return fmt.Errorf("replay.speed must be > 0")
		}
	}

	if cfg.Record.Enable {
		if cfg.Record.Path == "" {
			return fmt.Errorf("record.path is required when record.enable is true")
		}
		if cfg.Source.Mode == ModeReplay {
			return fmt.Errorf("record cannot be enabled when source.mode is 'replay'")
		}
	}

	if cfg.UDP.Enable && cfg.UDP.Dest == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}
	switch cfg.UDP.Format {
	case "":
		cfg.UDP.Format = "nmea"
	case "nmea", "gdl90":
	default:
		return fmt.Errorf("udp.format must be nmea or gdl90 (got %q)", cfg.UDP.Format)
	}
	if cfg.UDP.ICAO == "" {
		cfg.UDP.ICAO = "F00000"
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Indicator.Enable && cfg.Indicator.Pin <= 0 {
		return fmt.Errorf("indicator.pin is required when indicator.enable is true")
	}
	if cfg.Indicator.MaxAccuracyM <= 0 {
		cfg.Indicator.MaxAccuracyM = 25
	}
	if cfg.Indicator.StaleAfter <= 0 {
		cfg.Indicator.StaleAfter = 5 * time.Second
	}

	return nil
}
