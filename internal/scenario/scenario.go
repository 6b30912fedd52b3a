package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"time"

	"thpool/internal/chaos"
	"thpool/internal/events"
	"thpool/internal/logger"
	"thpool/internal/metrics"
	"thpool/internal/recovery"
	"thpool/internal/worker"
)

// ErrAlreadyRunning は実行中のエンジンで Run を呼んだ場合に返る
var ErrAlreadyRunning = errors.New("scenario is already running")

// Config はシナリオの設定
type Config struct {
	Name        string // シナリオ名
	Description string // 説明

	// プール設定
	Workers          int // ワーカー数（0でジョブは実行されない）
	QueueCapacity    int // キューの初期容量
	MaxQueueCapacity int // キュー容量の上限（0で無制限）

	// 負荷設定
	Jobs        int           // 投入するジョブ数
	Producers   int           // 並行して投入するゴルーチン数
	JobDuration time.Duration // 1ジョブの所要時間
	Announce    bool          // ジョブごとに好きな数字を出力する

	// カオス設定
	EnableChaos bool               // 障害注入を有効化
	ChaosRatio  float64            // 障害を注入するジョブの割合
	AttackTypes []chaos.AttackType // 有効な攻撃タイプ
	ChaosDelay  time.Duration      // Delay攻撃時の遅延時間

	// 起動リトライ設定
	InitRetries int           // ワーカー起動の最大リトライ回数
	RetryDelay  time.Duration // リトライまでの待機時間
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Name:          "default",
		Description:   "Default workload",
		Workers:       4,
		QueueCapacity: 256,
		Jobs:          100,
		Producers:     1,
		JobDuration:   10 * time.Millisecond,
		ChaosRatio:    0.1,
		AttackTypes:   []chaos.AttackType{chaos.AttackDelay, chaos.AttackPanic},
		ChaosDelay:    10 * time.Millisecond,
		InitRetries:   3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// Validate は設定値を検証する
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must be >= 0, got %d", c.Jobs)
	}
	if c.Producers < 0 {
		return fmt.Errorf("producers must be >= 0, got %d", c.Producers)
	}
	if c.JobDuration < 0 {
		return fmt.Errorf("job duration must be >= 0, got %v", c.JobDuration)
	}
	if c.QueueCapacity < 0 || c.MaxQueueCapacity < 0 {
		return fmt.Errorf("queue capacity must be >= 0")
	}
	if c.ChaosRatio < 0 || c.ChaosRatio > 1 {
		return fmt.Errorf("chaos ratio must be within [0, 1], got %v", c.ChaosRatio)
	}
	if c.InitRetries < 0 {
		return fmt.Errorf("init retries must be >= 0, got %d", c.InitRetries)
	}
	return nil
}

// Result はシナリオ実行結果
type Result struct {
	ScenarioName string        `json:"scenario"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`
	Cancelled    bool          `json:"cancelled"`

	// プール
	Workers    int    `json:"workers"`
	QueueCap   int    `json:"queue_cap"`
	QueueGrows uint64 `json:"queue_grows"`

	// ジョブ
	JobsPlanned int           `json:"jobs_planned"`
	Submitted   uint64        `json:"submitted"`
	Rejected    uint64        `json:"rejected"`
	Completed   uint64        `json:"completed"`
	Panicked    uint64        `json:"panicked"`
	Discarded   uint64        `json:"discarded"`
	Throughput  float64       `json:"throughput"`
	AvgRunTime  time.Duration `json:"avg_run_time"`
	P99RunTime  time.Duration `json:"p99_run_time"`

	// カオス統計
	TotalAttacks uint64 `json:"total_attacks"`

	// 起動リトライ統計
	InitAttempts uint64 `json:"init_attempts"`
}

// Engine はシナリオ実行エンジン
type Engine struct {
	config   Config
	eventBus *events.Bus
	output   io.Writer
	shared   *metrics.Metrics

	mu       sync.RWMutex
	running  bool
	pool     *worker.Pool
	metrics  *metrics.Metrics
	injector *chaos.Injector
	recovery *recovery.Manager
}

// New は新しいEngineを作成する
func New(config Config) *Engine {
	return &Engine{
		config: config,
		output: os.Stderr,
	}
}

// SetEventBus はイベントバスを設定する
func (e *Engine) SetEventBus(bus *events.Bus) {
	e.eventBus = bus
}

// SetOutput はジョブの出力先を設定する
func (e *Engine) SetOutput(w io.Writer) {
	e.output = w
}

// SetMetrics は記録先のメトリクスを設定する。未設定の場合は実行ごとに作成する
// 設定したメトリクスは実行をまたいで累積する
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.shared = m
}

func (e *Engine) publishEvent(event events.Event) {
	if e.eventBus != nil {
		e.eventBus.Publish(event)
	}
}

// Run はシナリオを実行する
// ctx がキャンセルされると投入を止めてプールを停止し、Cancelled を立てた結果を返す
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	logger.Info("scenario", "=== Scenario '%s' started ===", e.config.Name)
	logger.Info("scenario", "Description: %s", e.config.Description)

	result := &Result{
		ScenarioName: e.config.Name,
		StartTime:    time.Now(),
		Workers:      e.config.Workers,
		JobsPlanned:  e.config.Jobs,
	}

	// セットアップ
	if err := e.setup(ctx); err != nil {
		e.publishEvent(events.NewScenarioFinishedEvent(e.config.Name, e.config.Name, err))
		return nil, fmt.Errorf("setup failed: %w", err)
	}
	e.publishEvent(events.NewScenarioStartedEvent(e.config.Name, e.config.Name, e.config.Workers, e.config.Jobs))

	// シナリオ実行
	result.Cancelled = e.runScenario(ctx)
	e.collectPoolStats(result)
	if e.pool.State() == worker.StateRunning {
		e.pool.Shutdown()
	}

	// 結果収集
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	e.collectResults(result)

	var finishErr error
	if result.Cancelled {
		finishErr = context.Cause(ctx)
		logger.Warn("scenario", "=== Scenario '%s' cancelled ===", e.config.Name)
	} else {
		logger.Info("scenario", "=== Scenario '%s' completed ===", e.config.Name)
	}
	e.publishEvent(events.NewScenarioFinishedEvent(e.config.Name, e.config.Name, finishErr))

	return result, nil
}

// setup はプールを作成してワーカーを起動する
func (e *Engine) setup(ctx context.Context) error {
	m := e.shared
	if m == nil {
		m = metrics.New()
	}

	pool := worker.NewPool(worker.PoolConfig{
		Name:             e.config.Name,
		QueueCapacity:    e.config.QueueCapacity,
		MaxQueueCapacity: e.config.MaxQueueCapacity,
		Metrics:          m,
		Events:           e.eventBus,
	})

	var injector *chaos.Injector
	if e.config.EnableChaos {
		chaosConfig := chaos.DefaultConfig()
		chaosConfig.Ratio = e.config.ChaosRatio
		chaosConfig.AttackTypes = e.config.AttackTypes
		chaosConfig.DelayDuration = e.config.ChaosDelay
		injector = chaos.New(chaosConfig)
		injector.SetEventBus(e.eventBus, e.config.Name)
	}

	recoveryConfig := recovery.DefaultConfig()
	recoveryConfig.MaxRetries = e.config.InitRetries
	recoveryConfig.RecoveryDelay = e.config.RetryDelay
	manager := recovery.New(recoveryConfig)

	e.mu.Lock()
	e.pool = pool
	e.metrics = m
	e.injector = injector
	e.recovery = manager
	e.mu.Unlock()

	return manager.Init(ctx, pool, e.config.Workers)
}

// runScenario はジョブを投入して完了を待つ。キャンセルされた場合は true を返す
func (e *Engine) runScenario(ctx context.Context) bool {
	var wg sync.WaitGroup
	for i, share := range e.shares() {
		wg.Add(1)
		go func(producer, first, count int) {
			defer wg.Done()
			e.produce(ctx, producer, first, count)
		}(i+1, share[0], share[1])
	}

	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- e.pool.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Warn("scenario", "Wait returned: %v", err)
		}
		// キャンセルで中断したジョブが完了扱いになり、先に戻ることがある
		return ctx.Err() != nil
	case <-ctx.Done():
		logger.Info("scenario", "Scenario cancelled, stopping pool...")
		e.pool.Shutdown()
		<-done
		return true
	}
}

// shares はジョブを各プロデューサーへ分配する。要素は {先頭番号, 件数}
func (e *Engine) shares() [][2]int {
	jobs := e.config.Jobs
	producers := max(e.config.Producers, 1)
	if jobs == 0 {
		return nil
	}
	producers = min(producers, jobs)

	shares := make([][2]int, 0, producers)
	first := 0
	for i := 0; i < producers; i++ {
		count := jobs / producers
		if i < jobs%producers {
			count++
		}
		shares = append(shares, [2]int{first, count})
		first += count
	}
	return shares
}

// produce は割り当てられたジョブを投入する
func (e *Engine) produce(ctx context.Context, producer, first, count int) {
	for seq := first; seq < first+count; seq++ {
		if ctx.Err() != nil {
			return
		}

		job := worker.Job{
			Fn:  func(arg any) { e.runJob(ctx, arg.(int)) },
			Arg: seq,
		}
		if e.injector != nil {
			job = e.injector.Wrap(job)
		}

		if err := e.pool.Submit(job); err != nil {
			if errors.Is(err, worker.ErrClosed) {
				return
			}
			logger.Error("scenario", "Producer %d: error adding job %d: %v", producer, seq, err)
		}
	}
}

// runJob はワークロードの1ジョブ
func (e *Engine) runJob(ctx context.Context, seq int) {
	if e.config.Announce {
		fmt.Fprintf(e.output, "My favorite number is #%d\n", rand.Intn(100))
	}
	if e.config.JobDuration <= 0 {
		return
	}

	timer := time.NewTimer(e.config.JobDuration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		logger.Debug("scenario", "Job %d interrupted", seq)
	}
}

// collectPoolStats は停止前にプールの状態を記録する
func (e *Engine) collectPoolStats(result *Result) {
	stats := e.pool.Stats()
	result.QueueCap = stats.QueueCap
	result.QueueGrows = uint64(stats.QueueGrows)
}

// collectResults は結果を収集する
func (e *Engine) collectResults(result *Result) {
	snapshot := e.metrics.Snapshot()
	result.Submitted = snapshot.Submitted
	result.Rejected = snapshot.Rejected
	result.Completed = snapshot.Completed
	result.Panicked = snapshot.Panicked
	result.Throughput = snapshot.Throughput
	result.AvgRunTime = snapshot.AverageRunTime
	result.P99RunTime = snapshot.P99RunTime
	if finished := result.Completed + result.Panicked; result.Submitted > finished {
		result.Discarded = result.Submitted - finished
	}

	if e.injector != nil {
		result.TotalAttacks = e.injector.AttackCount()
	}
	result.InitAttempts = e.recovery.Stats().TotalAttempts
}

// Report は結果をフォーマットして返す
func (r *Result) Report() string {
	status := "completed"
	if r.Cancelled {
		status = "cancelled"
	}

	return fmt.Sprintf(`
================================================================================
                         SCENARIO REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Start Time:     %s
  End Time:       %s
  Duration:       %v
  Status:         %s

POOL
----
  Workers:          %d
  Init Attempts:    %d
  Queue Capacity:   %d
  Queue Grows:      %d

JOBS
----
  Planned:          %d
  Submitted:        %d
  Rejected:         %d
  Completed:        %d
  Panicked:         %d
  Discarded:        %d
  Throughput:       %.2f jobs/s
  Avg Run Time:     %v
  P99 Run Time:     %v

CHAOS STATISTICS
----------------
  Total Attacks:    %d

================================================================================`,
		r.ScenarioName,
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.EndTime.Format("2006-01-02 15:04:05"),
		r.Duration.Round(time.Millisecond),
		status,
		r.Workers,
		r.InitAttempts,
		r.QueueCap,
		r.QueueGrows,
		r.JobsPlanned,
		r.Submitted,
		r.Rejected,
		r.Completed,
		r.Panicked,
		r.Discarded,
		r.Throughput,
		r.AvgRunTime.Round(time.Microsecond),
		r.P99RunTime.Round(time.Microsecond),
		r.TotalAttacks,
	)
}

// IsRunning は実行中かどうかを返す
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Config はシナリオ設定を返す
func (e *Engine) Config() Config {
	return e.config
}

// Pool は直近の実行で使ったプールを返す
func (e *Engine) Pool() *worker.Pool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pool
}

// ChaosStats はカオス統計を返す
func (e *Engine) ChaosStats() *chaos.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.injector == nil {
		return nil
	}
	stats := e.injector.Stats()
	return &stats
}

// RecoveryStats は起動リトライ統計を返す
func (e *Engine) RecoveryStats() *recovery.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.recovery == nil {
		return nil
	}
	stats := e.recovery.Stats()
	return &stats
}

// Metrics はジョブメトリクスを返す
func (e *Engine) Metrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.metrics == nil {
		return nil
	}
	snapshot := e.metrics.Snapshot()
	return &snapshot
}
