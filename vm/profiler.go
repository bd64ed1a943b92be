package vm

import (
	"sync"
	"sync/atomic"

	"github.com/chazu/loomscript/guest"
	"github.com/chazu/loomscript/reflection"
)

// Profiler counts method invocations through the guest call hook.
// Calls to functions that are not registered methods are counted as
// untracked.

// MethodProfile holds profiling data for a single method.
type MethodProfile struct {
	InvocationCount uint64 // Atomic counter for invocations
	IsHot           bool   // True if threshold exceeded
}

// Profiler tracks per-method invocation counts for one instance.
type Profiler struct {
	// Profile storage; readable from other goroutines while the guest runs.
	methodProfiles sync.Map // *reflection.MethodInfo -> *MethodProfile

	// HotThreshold is the invocation count at which a method becomes hot.
	HotThreshold uint64 // Default: 100

	// OnHot is called once per method when it becomes hot.
	OnHot func(method *reflection.MethodInfo, profile *MethodProfile)

	// Statistics
	hotMethodCount uint64
	untracked      uint64
}

// NewProfiler creates a new profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: 100}
}

// RecordMethodInvocation increments the invocation count for a method.
// Returns true if this invocation caused the method to become hot.
func (p *Profiler) RecordMethodInvocation(method *reflection.MethodInfo) bool {
	if method == nil {
		atomic.AddUint64(&p.untracked, 1)
		return false
	}

	val, _ := p.methodProfiles.LoadOrStore(method, &MethodProfile{})
	profile := val.(*MethodProfile)

	count := atomic.AddUint64(&profile.InvocationCount, 1)

	if !profile.IsHot && count >= p.HotThreshold {
		profile.IsHot = true
		atomic.AddUint64(&p.hotMethodCount, 1)

		if p.OnHot != nil {
			p.OnHot(method, profile)
		}
		return true
	}
	return false
}

// GetMethodProfile returns the profile for a method, or nil if not tracked.
func (p *Profiler) GetMethodProfile(method *reflection.MethodInfo) *MethodProfile {
	if val, ok := p.methodProfiles.Load(method); ok {
		return val.(*MethodProfile)
	}
	return nil
}

// IsMethodHot returns true if the method has exceeded the hot threshold.
func (p *Profiler) IsMethodHot(method *reflection.MethodInfo) bool {
	profile := p.GetMethodProfile(method)
	return profile != nil && profile.IsHot
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	TotalMethods      int    // Number of methods profiled
	HotMethods        int    // Number of hot methods
	NativeInvocations uint64 // Invocations of native methods
	ScriptInvocations uint64 // Invocations of script methods
	UntrackedCalls    uint64 // Calls to functions that are not methods
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.methodProfiles.Range(func(key, value any) bool {
		method := key.(*reflection.MethodInfo)
		profile := value.(*MethodProfile)
		stats.TotalMethods++
		n := atomic.LoadUint64(&profile.InvocationCount)
		if method.IsNative() {
			stats.NativeInvocations += n
		} else {
			stats.ScriptInvocations += n
		}
		if profile.IsHot {
			stats.HotMethods++
		}
		return true
	})
	stats.UntrackedCalls = atomic.LoadUint64(&p.untracked)
	return stats
}

// TopMethods returns the N most frequently invoked methods.
func (p *Profiler) TopMethods(n int) []*reflection.MethodInfo {
	type methodCount struct {
		method *reflection.MethodInfo
		count  uint64
	}

	var all []methodCount
	p.methodProfiles.Range(func(key, value any) bool {
		profile := value.(*MethodProfile)
		all = append(all, methodCount{key.(*reflection.MethodInfo), atomic.LoadUint64(&profile.InvocationCount)})
		return true
	})

	// Simple selection sort for top N (fine for small N)
	for i := 0; i < n && i < len(all); i++ {
		maxIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].count > all[maxIdx].count {
				maxIdx = j
			}
		}
		all[i], all[maxIdx] = all[maxIdx], all[i]
	}

	result := make([]*reflection.MethodInfo, 0, n)
	for i := 0; i < n && i < len(all); i++ {
		result = append(result, all[i].method)
	}
	return result
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.methodProfiles = sync.Map{}
	atomic.StoreUint64(&p.hotMethodCount, 0)
	atomic.StoreUint64(&p.untracked, 0)
}

// ---------------------------------------------------------------------------
// Attaching to an instance
// ---------------------------------------------------------------------------

// EnableProfiler attaches a profiler to the guest call hook and returns
// it. An attached profiler is returned as is.
func (s *State) EnableProfiler() *Profiler {
	if s.profiler != nil {
		return s.profiler
	}
	p := NewProfiler()
	s.profiler = p
	s.g.SetHook(func(g *guest.State, fn *guest.Function) {
		p.RecordMethodInvocation(s.MethodForFunction(fn))
	})
	return p
}

// DisableProfiler detaches the profiler, if one is attached.
func (s *State) DisableProfiler() {
	if s.profiler == nil {
		return
	}
	if s.g != nil {
		s.g.SetHook(nil)
	}
	s.profiler = nil
}

// Profiler returns the attached profiler, or nil.
func (s *State) Profiler() *Profiler { return s.profiler }
