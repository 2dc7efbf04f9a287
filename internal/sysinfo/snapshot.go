// Package sysinfo captures process and host facts once per collection tick
// and defines the providers that turn them into metric values.
package sysinfo

import (
	"runtime"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/procfs"

	"github.com/xtxerr/vmstats/internal/logging"
)

var log = logging.Component("sysinfo")

// Unavailable marks a fact the platform could not supply.
const Unavailable = -1

// Snapshot is an immutable, point-in-time bundle of process facts. One
// snapshot is shared by every provider of a tick, so all metrics of a tick
// see the same view. Facts that could not be read are Unavailable.
type Snapshot struct {
	TakenAt time.Time

	// Go runtime memory, bytes
	HeapUsedBytes int64
	NonHeapBytes  int64

	// Host and process memory, bytes
	PhysicalUsedBytes  int64
	PhysicalTotalBytes int64
	ResidentBytes      int64

	Goroutines int64
	Threads    int64

	GCCount      int64
	GCPauseTotal time.Duration

	// CPU load over the interval since the previous snapshot, percent.
	// ProcessCPULoad is normalized across all cores.
	ProcessCPULoad float64
	SystemCPULoad  float64
	LoadAverage1   float64

	OpenFileDescriptors int64
	NumCPU              int
}

// Source produces snapshots.
type Source interface {
	Snapshot() *Snapshot
}

// Sampler reads snapshots from the Go runtime and /proc. CPU loads are
// computed from the difference to the previous snapshot, so the first
// snapshot reports them Unavailable.
type Sampler struct {
	mu    sync.Mutex
	clock clock.Clock

	fs      procfs.FS
	fsErr   error
	proc    procfs.Proc
	procErr error

	havePrev    bool
	prevAt      time.Time
	prevProcCPU float64
	prevSys     procfs.CPUStat
}

// NewSampler creates a sampler for the current process. On systems without
// /proc only the runtime facts are available.
func NewSampler(clk clock.Clock) *Sampler {
	if clk == nil {
		clk = clock.New()
	}

	s := &Sampler{clock: clk}
	s.fs, s.fsErr = procfs.NewDefaultFS()
	if s.fsErr == nil {
		s.proc, s.procErr = s.fs.Self()
	} else {
		s.procErr = s.fsErr
	}
	if s.fsErr != nil || s.procErr != nil {
		log.Info("procfs unavailable, host facts disabled", "error", firstErr(s.fsErr, s.procErr))
	}
	return s
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Snapshot captures the current facts.
func (s *Sampler) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	snap := &Snapshot{
		TakenAt:             now,
		PhysicalUsedBytes:   Unavailable,
		PhysicalTotalBytes:  Unavailable,
		ResidentBytes:       Unavailable,
		ProcessCPULoad:      Unavailable,
		SystemCPULoad:       Unavailable,
		LoadAverage1:        Unavailable,
		OpenFileDescriptors: Unavailable,
		Threads:             Unavailable,
		NumCPU:              runtime.NumCPU(),
		Goroutines:          int64(runtime.NumGoroutine()),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap.HeapUsedBytes = int64(ms.HeapAlloc)
	snap.NonHeapBytes = int64(ms.Sys - ms.HeapSys)
	snap.GCCount = int64(ms.NumGC)
	snap.GCPauseTotal = time.Duration(ms.PauseTotalNs)

	var procCPU float64
	haveProcCPU := false

	if s.procErr == nil {
		if st, err := s.proc.Stat(); err == nil {
			snap.ResidentBytes = int64(st.ResidentMemory())
			snap.Threads = int64(st.NumThreads)
			procCPU = st.CPUTime()
			haveProcCPU = true
		}
		if n, err := s.proc.FileDescriptorsLen(); err == nil {
			snap.OpenFileDescriptors = int64(n)
		}
	}
	if snap.Threads == Unavailable {
		snap.Threads = int64(pprof.Lookup("threadcreate").Count())
	}

	var sys procfs.CPUStat
	haveSys := false

	if s.fsErr == nil {
		if mi, err := s.fs.Meminfo(); err == nil && mi.MemTotalBytes != nil && mi.MemAvailableBytes != nil {
			snap.PhysicalTotalBytes = int64(*mi.MemTotalBytes)
			snap.PhysicalUsedBytes = int64(*mi.MemTotalBytes - *mi.MemAvailableBytes)
		}
		if st, err := s.fs.Stat(); err == nil {
			sys = st.CPUTotal
			haveSys = true
		}
		if la, err := s.fs.LoadAvg(); err == nil {
			snap.LoadAverage1 = la.Load1
		}
	}

	if s.havePrev {
		wall := now.Sub(s.prevAt)
		if haveProcCPU {
			snap.ProcessCPULoad = processLoad(s.prevProcCPU, procCPU, wall, snap.NumCPU)
		}
		if haveSys {
			snap.SystemCPULoad = systemLoad(s.prevSys, sys)
		}
	}

	if haveProcCPU && haveSys {
		s.havePrev = true
		s.prevAt = now
		s.prevProcCPU = procCPU
		s.prevSys = sys
	}

	return snap
}

// processLoad returns the share of all cores used by the process between
// two CPU time readings, in percent.
func processLoad(prevSeconds, curSeconds float64, wall time.Duration, numCPU int) float64 {
	if wall <= 0 || numCPU <= 0 {
		return Unavailable
	}
	pct := (curSeconds - prevSeconds) / (wall.Seconds() * float64(numCPU)) * 100
	return clampPercent(pct)
}

// systemLoad returns the busy share of all cores between two readings of
// the host CPU counters, in percent.
func systemLoad(prev, cur procfs.CPUStat) float64 {
	total := cpuTotal(cur) - cpuTotal(prev)
	if total <= 0 {
		return Unavailable
	}
	idle := (cur.Idle + cur.Iowait) - (prev.Idle + prev.Iowait)
	return clampPercent((total - idle) / total * 100)
}

func cpuTotal(c procfs.CPUStat) float64 {
	return c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// Static is a Source returning the same snapshot every time.
type Static struct {
	Snap *Snapshot
}

// Snapshot returns the fixed snapshot.
func (s Static) Snapshot() *Snapshot {
	return s.Snap
}
