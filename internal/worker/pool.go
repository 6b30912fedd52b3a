package worker

import (
	"fmt"
	"sync"

	"thpool/internal/events"
	"thpool/internal/logger"
	"thpool/internal/metrics"
	"thpool/internal/queue"
)

// Job はワーカーが実行するジョブを表す
// Arg はプールが所有しない借用参照で、ジョブが実行されるまで呼び出し側が有効に保つ
type Job struct {
	Fn  func(arg any)
	Arg any
}

// Func は引数を取らない関数をジョブに変換する
func Func(fn func()) Job {
	if fn == nil {
		return Job{}
	}
	return Job{Fn: func(any) { fn() }}
}

// State はプールのライフサイクル状態
type State int

const (
	StateUninitialized State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	Name             string           // ログ・イベント・メトリクスのラベル
	QueueCapacity    int              // キューの初期容量（0でqueue.DefaultCapacity）
	MaxQueueCapacity int              // キュー容量の上限（0で無制限）
	Metrics          *metrics.Metrics // nilで記録しない
	Events           *events.Bus      // nilで発行しない
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Name:          "default",
		QueueCapacity: queue.DefaultCapacity,
	}
}

// spawnFunc はワーカーのゴルーチンを起動する
type spawnFunc func(fn func()) error

func goSpawn(fn func()) error {
	go fn()
	return nil
}

// handle は起動したワーカー1つ分のハンドル
type handle struct {
	id   int
	tag  string
	done chan struct{}
}

// Pool は固定数のワーカーと伸長するFIFOキューからなるプール
//
// キューと各カウンタは mu で保護され、3つの条件変数が同じロックを共有する。
//   - workAvailable: キューが空でなくなった、または停止した（ワーカーが待つ）
//   - drained: 実行中のワーカーが0になった、または停止した（Waitが待つ）
//   - exited: 生存ワーカーが0になった（Shutdownが待つ）
type Pool struct {
	config PoolConfig
	name   string
	spawn  spawnFunc

	mu            sync.Mutex
	workAvailable *sync.Cond
	drained       *sync.Cond
	exited        *sync.Cond

	queue      *queue.Queue[Job]
	handles    []*handle
	numWorkers int
	alive      int
	executing  int
	running    bool
	state      State
}

// NewPool は未初期化のプールを作成する
func NewPool(config PoolConfig) *Pool {
	if config.Name == "" {
		config.Name = DefaultPoolConfig().Name
	}
	p := &Pool{
		config: config,
		name:   config.Name,
		spawn:  goSpawn,
	}
	p.workAvailable = sync.NewCond(&p.mu)
	p.drained = sync.NewCond(&p.mu)
	p.exited = sync.NewCond(&p.mu)
	return p
}

// Init はキューを確保し n 個のワーカーを起動する
// n が 0 の場合、ジョブは受け付けるが実行されない
// 起動に失敗した場合は起動済みのワーカーを停止・回収し、未初期化状態に戻す
func (p *Pool) Init(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkerCount, n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateRunning, StateStopping:
		return ErrAlreadyRunning
	case StateStopped:
		return ErrClosed
	}

	p.queue = queue.New[Job](queue.Config{
		InitialCapacity: p.config.QueueCapacity,
		MaxCapacity:     p.config.MaxQueueCapacity,
	})
	p.handles = make([]*handle, 0, n)
	p.alive, p.executing = 0, 0
	p.running = true

	committed := false
	defer func() {
		if !committed {
			p.rollback()
		}
	}()

	// ワーカーは mu の解放を待ってから生存登録する
	for i := 0; i < n; i++ {
		h := &handle{
			id:   i + 1,
			tag:  fmt.Sprintf("%s/worker-%d", p.name, i+1),
			done: make(chan struct{}),
		}
		if err := p.spawn(func() { p.work(h) }); err != nil {
			logger.Error(p.name, "Failed to start worker %d: %v", h.id, err)
			return fmt.Errorf("%w %d: %v", ErrThreadStart, h.id, err)
		}
		p.handles = append(p.handles, h)
	}

	p.numWorkers = n
	p.state = StateRunning
	committed = true

	logger.Info(p.name, "WorkerPool started with %d workers (queue capacity %d)", n, p.queue.Cap())
	p.publish(events.NewPoolStartedEvent(p.name, n))

	return nil
}

// rollback は部分的に起動したワーカーを停止・回収し、確保した領域を解放する
// mu を保持した状態で呼ばれ、保持した状態で戻る
func (p *Pool) rollback() {
	p.running = false
	p.state = StateStopping
	p.workAvailable.Broadcast()
	handles := p.handles
	p.mu.Unlock()

	for _, h := range handles {
		<-h.done
	}

	p.mu.Lock()
	p.queue.Release()
	p.handles = nil
	p.numWorkers = 0
	p.state = StateUninitialized

	logger.Warn(p.name, "WorkerPool start rolled back (%d workers joined)", len(handles))
}

// Submit はジョブをキューへ追加し、待機中のワーカーを1つ起こす
// ワーカーの空きは待たない。失敗時はキューを変更しない
func (p *Pool) Submit(job Job) error {
	if job.Fn == nil {
		p.recordReject()
		return ErrNilJob
	}

	p.mu.Lock()
	if p.state != StateRunning {
		state := p.state
		p.mu.Unlock()
		p.recordReject()
		if state == StateUninitialized {
			return ErrNotRunning
		}
		return ErrClosed
	}

	grows := p.queue.Grows()
	if err := p.queue.Push(job); err != nil {
		p.mu.Unlock()
		p.recordReject()
		return fmt.Errorf("submit: %w", err)
	}
	grown := p.queue.Grows() != grows
	capacity := p.queue.Cap()
	p.mu.Unlock()

	p.workAvailable.Signal()

	if m := p.config.Metrics; m != nil {
		m.RecordSubmit()
		if grown {
			m.RecordGrow()
		}
	}
	if grown {
		logger.Debug(p.name, "Queue grown to %d slots", capacity)
		p.publish(events.NewQueueGrownEvent(p.name, capacity))
	}

	return nil
}

// SubmitFunc は引数を取らない関数をジョブとして追加する
func (p *Pool) SubmitFunc(fn func()) error {
	return p.Submit(Func(fn))
}

// Wait はキューが空かつ実行中のワーカーがいなくなるまでブロックする
// 待機中にプールが停止した場合は ErrClosed を返す
func (p *Pool) Wait() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateUninitialized {
		return ErrNotRunning
	}

	// キューが空でも、取り出し済みで実行中のジョブがあり得る
	for p.running && !p.isDrained() {
		p.drained.Wait()
	}

	if !p.running {
		return ErrClosed
	}
	return nil
}

func (p *Pool) isDrained() bool {
	return p.queue.Len() == 0 && p.executing == 0
}

// Shutdown は全ワーカーを停止・回収し、キューを解放する
// 実行中のジョブは完了を待ち、キューに残ったジョブは破棄する
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.state != StateRunning {
		state := p.state
		p.mu.Unlock()
		logger.Warn(p.name, "Shutdown ignored: pool is %s", state)
		return
	}

	p.state = StateStopping
	p.running = false
	p.workAvailable.Broadcast()
	p.drained.Broadcast()

	for p.alive > 0 {
		p.exited.Wait()
	}
	handles := p.handles
	p.mu.Unlock()

	// 生存登録前だったワーカーもここで回収する
	for _, h := range handles {
		<-h.done
	}

	p.mu.Lock()
	discarded := p.queue.Release()
	p.handles = nil
	p.state = StateStopped
	p.mu.Unlock()

	if discarded > 0 {
		logger.Warn(p.name, "Discarded %d queued jobs at shutdown", discarded)
	}
	logger.Info(p.name, "WorkerPool stopped")
	p.publish(events.NewPoolStoppedEvent(p.name, discarded))
}

// Name はプール名を返す
func (p *Pool) Name() string {
	return p.name
}

// State は現在の状態を返す
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// NumWorkers は起動したワーカー数を返す
func (p *Pool) NumWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numWorkers
}

// Alive は生存中のワーカー数を返す
func (p *Pool) Alive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// Executing はジョブ実行中のワーカー数を返す
func (p *Pool) Executing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.executing
}

// QueueLen は待機中のジョブ数を返す
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return 0
	}
	return p.queue.Len()
}

// QueueCap はキューの確保済みスロット数を返す
func (p *Pool) QueueCap() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return 0
	}
	return p.queue.Cap()
}

// PoolStats はプール状態のスナップショット
type PoolStats struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Workers    int    `json:"workers"`
	Alive      int    `json:"alive"`
	Executing  int    `json:"executing"`
	QueueLen   int    `json:"queue_len"`
	QueueCap   int    `json:"queue_cap"`
	QueueGrows int    `json:"queue_grows"`
}

// Stats は一貫したスナップショットを返す
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{
		Name:      p.name,
		State:     p.state.String(),
		Workers:   p.numWorkers,
		Alive:     p.alive,
		Executing: p.executing,
	}
	if p.queue != nil {
		stats.QueueLen = p.queue.Len()
		stats.QueueCap = p.queue.Cap()
		stats.QueueGrows = p.queue.Grows()
	}
	return stats
}

func (p *Pool) recordReject() {
	if m := p.config.Metrics; m != nil {
		m.RecordReject()
	}
}

func (p *Pool) publish(event events.Event) {
	if bus := p.config.Events; bus != nil {
		bus.Publish(event)
	}
}
