package config

import (
	"fmt"
	"math"

	"cfdwind/internal/domain"
	"cfdwind/internal/foam"
)

// SimulationConfig holds the wind inputs and the domain/case sizing.
type SimulationConfig struct {
	WindDirection  float64 `yaml:"wind_direction"` // compass degrees the wind blows from
	WindSpeed      float64 `yaml:"wind_speed"`     // m/s at the inlet
	CPUCount       int     `yaml:"cpu_count"`
	ScaleX         float64 `yaml:"scale_x"`
	ScaleY         float64 `yaml:"scale_y"`
	ScaleZ         float64 `yaml:"scale_z"`
	MinExtent      float64 `yaml:"min_extent"`
	CellSize       float64 `yaml:"cell_size"`
	CutPlaneHeight float64 `yaml:"cut_plane_height"`
}

// DefaultSimulationConfig mirrors domain.DefaultOptions and foam.DefaultSettings.
func DefaultSimulationConfig() SimulationConfig {
	opts := domain.DefaultOptions()
	settings := foam.DefaultSettings()
	return SimulationConfig{
		WindSpeed:      10,
		CPUCount:       4,
		ScaleX:         opts.ScaleX,
		ScaleY:         opts.ScaleY,
		ScaleZ:         opts.ScaleZ,
		MinExtent:      opts.MinExtent,
		CellSize:       settings.CellSize,
		CutPlaneHeight: settings.CutPlaneHeight,
	}
}

// DomainOptions converts the section into domain builder options.
func (s SimulationConfig) DomainOptions() domain.Options {
	return domain.Options{
		WindDirection: s.WindDirection,
		WindSpeed:     s.WindSpeed,
		ScaleX:        s.ScaleX,
		ScaleY:        s.ScaleY,
		ScaleZ:        s.ScaleZ,
		MinExtent:     s.MinExtent,
	}
}

// CaseSettings converts the section into case writer settings.
func (s SimulationConfig) CaseSettings() foam.Settings {
	return foam.Settings{CellSize: s.CellSize, CutPlaneHeight: s.CutPlaneHeight}
}

// Validate checks the section.
func (s SimulationConfig) Validate() error {
	if err := s.DomainOptions().Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if math.IsNaN(s.WindDirection) || math.IsInf(s.WindDirection, 0) {
		return fmt.Errorf("simulation.wind_direction must be finite")
	}
	if s.CPUCount < 1 {
		return fmt.Errorf("simulation.cpu_count must be >= 1")
	}
	if s.CellSize <= 0 {
		return fmt.Errorf("simulation.cell_size must be > 0")
	}
	if s.CutPlaneHeight < 0 {
		return fmt.Errorf("simulation.cut_plane_height must be >= 0")
	}
	return nil
}
