package vm

import (
	"strings"
	"testing"

	"github.com/chazu/loomscript/guest"
)

func TestOpenInstallsRegistries(t *testing.T) {
	s := openState(t, nil, nil)
	g := s.Guest()

	for _, slot := range []int{
		SlotClasses, SlotManagedVersion, SlotManagedUserData, SlotNativeToScript,
		SlotNativeDelegates, SlotMemberNames, SlotAssemblyLookup, SlotMethodLookup,
	} {
		if g.RegistryTable(slot) == nil {
			t.Errorf("registry slot %d has no table", slot)
		}
	}
	if !g.RegistryTable(SlotMethodLookup).WeakKeys() {
		t.Error("method lookup table should have weak keys")
	}
	if g.RegistryTable(SlotClasses).WeakKeys() {
		t.Error("class table should not have weak keys")
	}
	if _, ok := g.GetGlobal(GlobalNativeClasses).(*guest.Table); !ok {
		t.Errorf("%s is not a table", GlobalNativeClasses)
	}
	if fn, ok := g.GetGlobal(GlobalTraceback).(*guest.Function); !ok || !fn.IsNative() {
		t.Errorf("%s is not a native function", GlobalTraceback)
	}
	if g.GC(guest.GCIsRunning) != 0 {
		t.Error("guest collector should be stopped after Open")
	}
	if _, ok := g.GetGlobal("socket").(*guest.Table); !ok {
		t.Error("socket library not installed")
	}
}

func TestHandleRegistry(t *testing.T) {
	before := OpenInstances()
	s := New(testConfig(), nil)
	s.Open()
	g := s.Guest()

	if OpenInstances() != before+1 {
		t.Errorf("OpenInstances = %d, want %d", OpenInstances(), before+1)
	}
	if FromGuest(g) != s {
		t.Fatal("FromGuest did not find the instance")
	}
	if LastActive() != s {
		t.Error("FromGuest should fill the last-active slot")
	}

	s.Close()

	if s.Guest() != nil {
		t.Error("Close should drop the guest handle")
	}
	if FromGuest(g) != nil {
		t.Error("closed guest still resolves to an instance")
	}
	if LastActive() == s {
		t.Error("last-active slot still refers to the closed instance")
	}
	if OpenInstances() != before {
		t.Errorf("OpenInstances = %d after Close, want %d", OpenInstances(), before)
	}
}

func TestLastActiveSurvivesOtherClose(t *testing.T) {
	a := openState(t, nil, nil)
	b := New(testConfig(), nil)
	b.Open()

	FromGuest(a.Guest())
	b.Close()

	if LastActive() != a {
		t.Error("closing another instance must not clear the last-active slot")
	}
}

func TestLifecyclePreconditions(t *testing.T) {
	t.Run("double open", func(t *testing.T) {
		s := openState(t, nil, nil)
		fe := mustFatal(t, s.Open)
		if !strings.Contains(fe.Message, "open instance") {
			t.Errorf("message = %q", fe.Message)
		}
	})
	t.Run("close without open", func(t *testing.T) {
		s := New(testConfig(), nil)
		mustFatal(t, s.Close)
	})
	t.Run("double close", func(t *testing.T) {
		s := New(testConfig(), nil)
		s.Open()
		s.Close()
		mustFatal(t, s.Close)
	})
}

func TestReopenAfterClose(t *testing.T) {
	s := New(testConfig(), nil)
	s.Open()
	s.Guest().SetChunkLoader(scriptLoader)
	loadSystem(t, s)
	s.Close()

	s.Open()
	defer s.Close()
	s.Guest().SetChunkLoader(scriptLoader)
	if s.GetType(ObjectTypeName) != nil || s.ObjectType != nil {
		t.Fatal("types survived Close")
	}
	loadSystem(t, s)
	if s.ObjectType == nil {
		t.Error("system assembly did not load after reopening")
	}
}

func TestByteAccounting(t *testing.T) {
	type op struct{ osize, nsize int }
	tests := []struct {
		name string
		ops  []op
		want int64
	}{
		{"alloc", []op{{0, 100}, {0, 28}}, 128},
		{"alloc then free", []op{{0, 64}, {64, 0}}, 0},
		{"grow", []op{{0, 10}, {10, 50}}, 50},
		{"shrink", []op{{0, 50}, {50, 20}}, 20},
		{"mixed", []op{{0, 30}, {0, 70}, {30, 0}, {70, 90}, {0, 5}}, 95},
		{"free first", []op{{40, 0}, {0, 40}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forward := New(testConfig(), nil)
			for _, o := range tt.ops {
				forward.onAlloc(o.osize, o.nsize)
			}
			backward := New(testConfig(), nil)
			for i := len(tt.ops) - 1; i >= 0; i-- {
				backward.onAlloc(tt.ops[i].osize, tt.ops[i].nsize)
			}
			if forward.AllocatedBytes() != tt.want || backward.AllocatedBytes() != tt.want {
				t.Errorf("AllocatedBytes = %d / %d, want %d", forward.AllocatedBytes(), backward.AllocatedBytes(), tt.want)
			}
		})
	}
}

func TestAllocatedBytesTracksGuest(t *testing.T) {
	s := New(testConfig(), nil)
	s.Open()
	s.Guest().SetChunkLoader(scriptLoader)
	loadSystem(t, s)

	if s.AllocatedBytes() <= 0 {
		t.Errorf("AllocatedBytes = %d, want > 0 after a load", s.AllocatedBytes())
	}
	if got := s.verifyAllocations(); got != "" {
		t.Errorf("verifyAllocations = %q", got)
	}

	s.Close()
	if s.AllocatedBytes() != 0 {
		t.Errorf("AllocatedBytes = %d after Close, want 0", s.AllocatedBytes())
	}
}

func TestNegativeAllocationIsReported(t *testing.T) {
	s := New(testConfig(), nil)
	s.onAlloc(10, 0)
	fe := mustFatal(t, func() { s.TriggerRuntimeError("boom") })
	found := false
	for _, line := range fe.Report {
		if strings.Contains(line, "allocator bookkeeping corrupt") {
			found = true
		}
	}
	if !found {
		t.Errorf("report does not mention the allocator: %q", fe.Report)
	}
}

func TestCollectGarbageKeepsCollectorStopped(t *testing.T) {
	s := openState(t, nil, nil)
	s.CollectGarbage()
	if s.Guest().GC(guest.GCIsRunning) != 0 {
		t.Error("collector should be stopped again after CollectGarbage")
	}
}

func TestCommandLine(t *testing.T) {
	SetCommandLine([]string{"loomrun", "-ticks", "3"})
	args := CommandLine()
	if len(args) != 3 || args[0] != "loomrun" {
		t.Fatalf("CommandLine = %v", args)
	}
	args[0] = "changed"
	if CommandLine()[0] != "loomrun" {
		t.Error("CommandLine must return a copy")
	}

	s := openState(t, nil, nil)
	support := s.Guest().GetGlobal("__ls_vm").(*guest.Table)
	out, err := s.Guest().Call(support.Get("commandline").(*guest.Function))
	if err != nil {
		t.Fatal(err)
	}
	if tbl := out[0].(*guest.Table); tbl.Get(1.0) != "loomrun" || tbl.Len() != 3 {
		t.Errorf("guest command line = %v", tbl.Get(1.0))
	}
}

func TestSafelyRepanicsOtherValues(t *testing.T) {
	defer func() {
		if r := recover(); r != "other" {
			t.Errorf("recovered %v, want other", r)
		}
	}()
	_ = Safely(func() { panic("other") })
}
