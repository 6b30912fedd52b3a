package chaos

import (
	"sync/atomic"
	"testing"
	"time"

	"thpool/internal/events"
	"thpool/internal/metrics"
	"thpool/internal/worker"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Ratio != 0.1 {
		t.Errorf("expected ratio 0.1, got %v", config.Ratio)
	}
	if config.DelayDuration != 100*time.Millisecond {
		t.Errorf("expected delay 100ms, got %v", config.DelayDuration)
	}
	if len(config.AttackTypes) != 2 {
		t.Errorf("expected 2 attack types, got %d", len(config.AttackTypes))
	}
}

func TestAttackTypeString(t *testing.T) {
	tests := []struct {
		attack   AttackType
		expected string
	}{
		{AttackDelay, "delay"},
		{AttackPanic, "panic"},
		{AttackType(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.attack.String(); got != tt.expected {
			t.Errorf("AttackType(%d).String() = %s, want %s", tt.attack, got, tt.expected)
		}
		if tt.expected == "unknown" {
			continue
		}
		parsed, ok := ParseAttackType(tt.expected)
		if !ok || parsed != tt.attack {
			t.Errorf("ParseAttackType(%s) = %v, %v", tt.expected, parsed, ok)
		}
	}

	if _, ok := ParseAttackType("kill"); ok {
		t.Error("expected unknown attack type to be rejected")
	}
}

func TestNewInjectorClampsRatio(t *testing.T) {
	inj := New(Config{Ratio: 3})
	if inj.config.Ratio != 1 {
		t.Errorf("expected ratio clamped to 1, got %v", inj.config.Ratio)
	}

	inj = New(Config{Ratio: -1})
	if inj.config.Ratio != 0 {
		t.Errorf("expected ratio clamped to 0, got %v", inj.config.Ratio)
	}
	if !inj.IsEnabled() {
		t.Error("expected injector to be enabled initially")
	}
}

func TestWrapNilJob(t *testing.T) {
	inj := New(DefaultConfig())

	if wrapped := inj.Wrap(worker.Job{}); wrapped.Fn != nil {
		t.Error("expected nil job to stay nil")
	}
}

func TestWrapZeroRatio(t *testing.T) {
	config := DefaultConfig()
	config.Ratio = 0
	inj := New(config)

	var ran int
	for range make([]struct{}, 100) {
		job := inj.Wrap(worker.Func(func() { ran++ }))
		job.Fn(job.Arg)
	}

	if ran != 100 {
		t.Errorf("expected 100 runs, got %d", ran)
	}
	if inj.AttackCount() != 0 {
		t.Errorf("expected no attacks, got %d", inj.AttackCount())
	}
	if inj.Stats().Wrapped != 100 {
		t.Errorf("expected 100 wrapped jobs, got %d", inj.Stats().Wrapped)
	}
}

func TestWrapDelay(t *testing.T) {
	inj := New(Config{
		Ratio:         1,
		AttackTypes:   []AttackType{AttackDelay},
		DelayDuration: 20 * time.Millisecond,
		Seed:          1,
	})

	var arg int
	job := inj.Wrap(worker.Job{Fn: func(a any) { *a.(*int) = 7 }, Arg: &arg})

	start := time.Now()
	job.Fn(job.Arg)
	elapsed := time.Since(start)

	if elapsed < 20*time.Millisecond {
		t.Errorf("expected at least 20ms delay, got %v", elapsed)
	}
	if arg != 7 {
		t.Errorf("expected wrapped job to run with its argument, got %d", arg)
	}

	stats := inj.Stats()
	if stats.TotalAttacks != 1 || stats.ByType["delay"] != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestWrapPanic(t *testing.T) {
	inj := New(Config{Ratio: 1, AttackTypes: []AttackType{AttackPanic}, Seed: 1})

	ran := false
	job := inj.Wrap(worker.Func(func() { ran = true }))

	defer func() {
		r := recover()
		if _, ok := r.(InjectedPanic); !ok {
			t.Errorf("expected InjectedPanic, got %v", r)
		}
		if ran {
			t.Error("wrapped job should not run after an injected panic")
		}
	}()
	job.Fn(job.Arg)
}

func TestDisable(t *testing.T) {
	inj := New(Config{Ratio: 1, AttackTypes: []AttackType{AttackPanic}, Seed: 1})

	job := inj.Wrap(worker.Func(func() {}))
	inj.Disable()

	if inj.IsEnabled() {
		t.Error("expected injector to be disabled")
	}

	// Decided at run time, so a job wrapped before Disable runs cleanly
	job.Fn(job.Arg)

	inj.Enable()
	if !inj.IsEnabled() {
		t.Error("expected injector to be enabled")
	}
}

func TestRatioDistribution(t *testing.T) {
	inj := New(Config{
		Ratio:       0.5,
		AttackTypes: []AttackType{AttackDelay},
		Seed:        42,
	})

	for range make([]struct{}, 1000) {
		job := inj.Wrap(worker.Func(func() {}))
		job.Fn(job.Arg)
	}

	count := inj.AttackCount()
	if count < 400 || count > 600 {
		t.Errorf("expected about 500 attacks, got %d", count)
	}
}

func TestInjectorWithPool(t *testing.T) {
	m := metrics.New()
	bus := events.NewBus()
	ch := bus.Subscribe()

	config := worker.DefaultPoolConfig()
	config.Name = "chaos"
	config.Metrics = m
	config.Events = bus
	pool := worker.NewPool(config)
	if err := pool.Init(2); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	defer pool.Shutdown()

	inj := New(Config{Ratio: 1, AttackTypes: []AttackType{AttackPanic}, Seed: 1})
	inj.SetEventBus(bus, "chaos")

	var ran atomic.Int32
	for range make([]struct{}, 5) {
		if err := pool.Submit(inj.Wrap(worker.Func(func() { ran.Add(1) }))); err != nil {
			t.Fatalf("failed to submit: %v", err)
		}
	}
	if err := pool.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if ran.Load() != 0 {
		t.Errorf("expected every job to be broken, %d ran", ran.Load())
	}
	if m.Panicked() != 5 {
		t.Errorf("expected 5 panicked jobs, got %d", m.Panicked())
	}
	if pool.Alive() != 2 {
		t.Errorf("expected workers to survive, got %d alive", pool.Alive())
	}

	injected := 0
	timeout := time.After(time.Second)
	for injected < 5 {
		select {
		case ev := <-ch:
			if ev.Type == events.EventFaultInjected {
				injected++
				if ev.Pool != "chaos" || ev.Data.Fault != "panic" {
					t.Errorf("unexpected fault event: %+v", ev)
				}
			}
		case <-timeout:
			t.Fatalf("expected 5 fault events, got %d", injected)
		}
	}
}
