package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/groupsched/internal/config"
	"github.com/vk/groupsched/internal/grouped"
	"github.com/vk/groupsched/internal/linkaddr"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPaths []string // hcl files or directories

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	// TelemetryURL overrides the telemetry block's socketio_url.
	TelemetryURL string
	// ReportPath, when set, receives the simulation report as JSON.
	ReportPath string
	// MaintainInterval overrides the scheduler block when positive.
	MaintainInterval time.Duration
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.ConfigPaths) == 0 {
		return nil, errors.New("at least one configuration path is required")
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("healthcheck port %d out of range", cfg.HealthcheckPort)
	}
	return &cfg, nil
}

// schedulerParams translates the scheduler block into engine parameters.
func schedulerParams(s config.Scheduler, maintainOverride time.Duration) grouped.Params {
	if maintainOverride > 0 {
		s.MaintainInterval = maintainOverride
	}
	hash := linkaddr.LastOctetHash
	if s.Hash == config.HashFold {
		hash = linkaddr.FoldHash
	}
	return grouped.Params{
		GroupAmount:      s.GroupAmount,
		GroupSize:        s.GroupSize,
		AddThreshold:     s.AddThreshold,
		DeleteThreshold:  s.DeleteThreshold,
		DebounceCycles:   s.DebounceCycles,
		NoAckBackoff:     s.NoAckBackoff,
		Partitions:       s.Multichannel,
		MaintainInterval: s.MaintainInterval,
		Hash:             hash,
	}
}
