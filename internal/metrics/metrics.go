package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics はプールのジョブ処理メトリクスを収集する
type Metrics struct {
	submitted atomic.Uint64
	rejected  atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
	grows     atomic.Uint64
	totalRun  atomic.Uint64 // 実行時間の合計（ns）

	mu             sync.RWMutex
	startTime      time.Time
	lastResetTime  time.Time
	windowFinished uint64
	durations      []time.Duration
	maxSamples     int
}

// Config はメトリクスの設定
type Config struct {
	MaxSamples int // P99計算用に保持する実行時間サンプル数
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{MaxSamples: 1000}
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	maxSamples := config.MaxSamples
	if maxSamples <= 0 {
		maxSamples = DefaultConfig().MaxSamples
	}
	now := time.Now()
	return &Metrics{
		startTime:     now,
		lastResetTime: now,
		durations:     make([]time.Duration, 0, maxSamples),
		maxSamples:    maxSamples,
	}
}

// RecordSubmit はキューに入ったジョブを記録する
func (m *Metrics) RecordSubmit() {
	m.submitted.Add(1)
}

// RecordReject は受け付けられなかったジョブを記録する
func (m *Metrics) RecordReject() {
	m.rejected.Add(1)
}

// RecordGrow はキューの拡張を記録する
func (m *Metrics) RecordGrow() {
	m.grows.Add(1)
}

// RecordCompletion は正常終了したジョブを記録する
func (m *Metrics) RecordCompletion(d time.Duration) {
	m.completed.Add(1)
	m.recordDuration(d)
}

// RecordPanic はpanicで終了したジョブを記録する
func (m *Metrics) RecordPanic(d time.Duration) {
	m.panicked.Add(1)
	m.recordDuration(d)
}

func (m *Metrics) recordDuration(d time.Duration) {
	m.totalRun.Add(uint64(d.Nanoseconds()))

	m.mu.Lock()
	m.windowFinished++
	if len(m.durations) < m.maxSamples {
		m.durations = append(m.durations, d)
	}
	m.mu.Unlock()
}

// Submitted は受け付けたジョブ数を返す
func (m *Metrics) Submitted() uint64 {
	return m.submitted.Load()
}

// Rejected は拒否したジョブ数を返す
func (m *Metrics) Rejected() uint64 {
	return m.rejected.Load()
}

// Completed は正常終了したジョブ数を返す
func (m *Metrics) Completed() uint64 {
	return m.completed.Load()
}

// Panicked はpanicしたジョブ数を返す
func (m *Metrics) Panicked() uint64 {
	return m.panicked.Load()
}

// Grows はキュー拡張の回数を返す
func (m *Metrics) Grows() uint64 {
	return m.grows.Load()
}

// Finished は実行を終えたジョブ数（正常終了 + panic）を返す
func (m *Metrics) Finished() uint64 {
	return m.completed.Load() + m.panicked.Load()
}

// Throughput は直近ウィンドウの毎秒処理ジョブ数を返す
func (m *Metrics) Throughput() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.lastResetTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.windowFinished) / elapsed
}

// AverageRunTime は平均実行時間を返す
func (m *Metrics) AverageRunTime() time.Duration {
	finished := m.Finished()
	if finished == 0 {
		return 0
	}
	return time.Duration(m.totalRun.Load() / finished)
}

// P99RunTime はP99実行時間を返す（サンプルベース）
func (m *Metrics) P99RunTime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.durations) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.durations))
	copy(sorted, m.durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Reset はウィンドウメトリクスをリセットする
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windowFinished = 0
	m.lastResetTime = time.Now()
	m.durations = m.durations[:0]
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	Submitted      uint64        `json:"submitted"`
	Rejected       uint64        `json:"rejected"`
	Completed      uint64        `json:"completed"`
	Panicked       uint64        `json:"panicked"`
	Grows          uint64        `json:"grows"`
	Throughput     float64       `json:"throughput"`
	AverageRunTime time.Duration `json:"average_run_time"`
	P99RunTime     time.Duration `json:"p99_run_time"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Submitted:      m.Submitted(),
		Rejected:       m.Rejected(),
		Completed:      m.Completed(),
		Panicked:       m.Panicked(),
		Grows:          m.Grows(),
		Throughput:     m.Throughput(),
		AverageRunTime: m.AverageRunTime(),
		P99RunTime:     m.P99RunTime(),
		Elapsed:        time.Since(m.startTime),
	}
}
