// Package config holds the process-level configuration for schedulerd:
// where state lives, how to reach the master, and the framework identity
// to register under. A Config is built once at startup from cobra flags
// and handed to every component that needs it; nothing in this package
// reads flags or the environment directly.
package config

import (
	"fmt"
	"time"

	"github.com/mesosphere/svc-scheduler/pkg/log"
	"github.com/mesosphere/svc-scheduler/pkg/reconcile"
)

// Config is the full set of knobs schedulerd's main command accepts.
type Config struct {
	DataDir string
	Master  string

	FrameworkName string
	Principal     string
	Role          string
	RoleWhitelist []string
	User          string
	Checkpoint    bool

	QueueCapacity     int
	DisableThreading  bool
	DeclineRefuseSecs int

	ReconcileFloor   time.Duration
	ReconcileCeiling time.Duration

	MetricsAddr string

	LogLevel log.Level
	LogJSON  bool
}

// Default returns a Config seeded with the same defaults the CLI flags
// declare, so tests and embedders don't need to go through cobra.
func Default() Config {
	return Config{
		DataDir:           "./scheduler-data",
		Master:            "127.0.0.1:5050",
		FrameworkName:     "svc-scheduler",
		Principal:         "svc-scheduler",
		Role:              "*",
		User:              "root",
		Checkpoint:        true,
		QueueCapacity:     32,
		DeclineRefuseSecs: 5,
		ReconcileFloor:    reconcile.DefaultBackoff.Floor,
		ReconcileCeiling:  reconcile.DefaultBackoff.Ceiling,
		MetricsAddr:       "127.0.0.1:9090",
		LogLevel:          log.InfoLevel,
	}
}

// Validate reports the first configuration error found, so main can fail
// fast before opening the BoltDB file or dialing the master.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data-dir must not be empty")
	}
	if c.Master == "" {
		return fmt.Errorf("master must not be empty")
	}
	if c.FrameworkName == "" {
		return fmt.Errorf("framework-name must not be empty")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue-capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.ReconcileFloor <= 0 || c.ReconcileCeiling < c.ReconcileFloor {
		return fmt.Errorf("reconcile-ceiling must be >= reconcile-floor > 0")
	}
	return nil
}
