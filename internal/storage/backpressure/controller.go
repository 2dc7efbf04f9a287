package backpressure

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/xtxerr/vmstats/internal/storage/config"
)

// Level represents the current backpressure level.
type Level int

const (
	// LevelNormal - persistence keeps up with collection.
	LevelNormal Level = iota

	// LevelWarning - the queue is filling, pause retention and archiving.
	LevelWarning

	// LevelCritical - the queue is close to full.
	LevelCritical

	// LevelEmergency - overload, queued records are shed.
	LevelEmergency
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Gauge reports how full a bounded buffer is, from 0 to 1.
type Gauge interface {
	UsageRatio() float64
}

// Controller manages backpressure based on persistence queue utilization.
type Controller struct {
	mu sync.RWMutex

	config *config.Config
	gauge  Gauge
	clock  clock.Clock

	// Current state
	level     atomic.Int32
	lastCheck time.Time
	lastLevel Level

	// Statistics
	stats Stats

	// Level change callback
	onLevelChange func(old, new Level)
}

// Stats holds backpressure statistics.
type Stats struct {
	LevelChanges   int64
	WarningCount   int64
	CriticalCount  int64
	EmergencyCount int64
	RecordsDropped int64
}

// New creates a new backpressure controller for the given gauge. The
// cooldown between level changes is measured on clk, the wall clock when nil.
func New(cfg *config.Config, gauge Gauge, clk clock.Clock) *Controller {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Controller{
		config:    cfg,
		gauge:     gauge,
		clock:     clk,
		lastCheck: clk.Now(),
	}
}

// SetOnLevelChange sets the callback for level changes.
// The callback runs with the controller locked and must not call back into it.
func (c *Controller) SetOnLevelChange(fn func(old, new Level)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLevelChange = fn
}

// Check evaluates current conditions and updates the level.
// This should be called periodically.
func (c *Controller) Check() Level {
	if !c.config.Backpressure.Enabled {
		return LevelNormal
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()

	// Respect cooldown
	if now.Sub(c.lastCheck) < c.config.Backpressure.Recovery.Cooldown {
		return Level(c.level.Load())
	}

	c.lastCheck = now

	newLevel := c.determineLevel(c.gauge.UsageRatio())
	if newLevel != c.lastLevel {
		c.setLevel(newLevel)
	}

	return newLevel
}

// determineLevel determines the backpressure level based on usage.
func (c *Controller) determineLevel(usage float64) Level {
	thresholds := c.config.Backpressure.Thresholds
	hysteresis := c.config.Backpressure.Recovery.Hysteresis

	// Going up (increasing pressure)
	if usage >= thresholds.Emergency {
		return LevelEmergency
	}
	if usage >= thresholds.Critical && c.lastLevel <= LevelCritical {
		return LevelCritical
	}
	if usage >= thresholds.Warning && c.lastLevel <= LevelWarning {
		return LevelWarning
	}

	// Going down (decreasing pressure) - apply hysteresis
	switch c.lastLevel {
	case LevelEmergency:
		if usage < thresholds.Emergency-hysteresis {
			return LevelCritical
		}
		return LevelEmergency
	case LevelCritical:
		if usage < thresholds.Critical-hysteresis {
			return LevelWarning
		}
		return LevelCritical
	case LevelWarning:
		if usage < thresholds.Warning-hysteresis {
			return LevelNormal
		}
		return LevelWarning
	default:
		return LevelNormal
	}
}

// setLevel updates the current level and fires callback.
func (c *Controller) setLevel(newLevel Level) {
	oldLevel := c.lastLevel
	c.lastLevel = newLevel
	c.level.Store(int32(newLevel))
	c.stats.LevelChanges++

	switch newLevel {
	case LevelWarning:
		c.stats.WarningCount++
	case LevelCritical:
		c.stats.CriticalCount++
	case LevelEmergency:
		c.stats.EmergencyCount++
	}

	if c.onLevelChange != nil {
		c.onLevelChange(oldLevel, newLevel)
	}
}

// CurrentLevel returns the current backpressure level.
func (c *Controller) CurrentLevel() Level {
	return Level(c.level.Load())
}

// ShouldDrop returns true if queued records should be shed.
func (c *Controller) ShouldDrop() bool {
	return c.CurrentLevel() == LevelEmergency
}

// ShouldPauseRetention returns true if pruning and archiving should wait.
func (c *Controller) ShouldPauseRetention() bool {
	return c.CurrentLevel() >= LevelWarning
}

// RecordDrop records that n records were dropped.
func (c *Controller) RecordDrop(n int) {
	c.mu.Lock()
	c.stats.RecordsDropped += int64(n)
	c.mu.Unlock()
}

// Stats returns current statistics.
func (c *Controller) Stats() ControllerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ControllerStats{
		CurrentLevel:   c.CurrentLevel(),
		LevelChanges:   c.stats.LevelChanges,
		WarningCount:   c.stats.WarningCount,
		CriticalCount:  c.stats.CriticalCount,
		EmergencyCount: c.stats.EmergencyCount,
		RecordsDropped: c.stats.RecordsDropped,
		QueueUsage:     c.gauge.UsageRatio(),
	}
}

// ControllerStats holds controller statistics.
type ControllerStats struct {
	CurrentLevel   Level
	LevelChanges   int64
	WarningCount   int64
	CriticalCount  int64
	EmergencyCount int64
	RecordsDropped int64
	QueueUsage     float64
}

// IsEnabled returns whether backpressure is enabled.
func (c *Controller) IsEnabled() bool {
	return c.config.Backpressure.Enabled
}
