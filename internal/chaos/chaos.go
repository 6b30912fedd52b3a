package chaos

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"thpool/internal/events"
	"thpool/internal/logger"
	"thpool/internal/worker"
)

// AttackType は注入する障害の種類を表す
type AttackType int

const (
	AttackDelay AttackType = iota
	AttackPanic
)

func (a AttackType) String() string {
	switch a {
	case AttackDelay:
		return "delay"
	case AttackPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// ParseAttackType は文字列を AttackType に変換する
func ParseAttackType(s string) (AttackType, bool) {
	switch s {
	case "delay":
		return AttackDelay, true
	case "panic":
		return AttackPanic, true
	default:
		return 0, false
	}
}

// InjectedPanic は AttackPanic で発生させる panic の値
type InjectedPanic struct {
	JobSeq uint64
}

func (p InjectedPanic) String() string {
	return "chaos: injected panic"
}

// Config は Injector の設定
type Config struct {
	Ratio         float64       // 障害を注入するジョブの割合（0〜1）
	AttackTypes   []AttackType  // 有効な攻撃タイプ
	DelayDuration time.Duration // Delay攻撃時の遅延時間
	Seed          int64         // 乱数シード（0で現在時刻）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Ratio:         0.1,
		AttackTypes:   []AttackType{AttackDelay, AttackPanic},
		DelayDuration: 100 * time.Millisecond,
	}
}

// Stats は注入の統計情報
type Stats struct {
	Wrapped      uint64            `json:"wrapped"`
	TotalAttacks uint64            `json:"total_attacks"`
	ByType       map[string]uint64 `json:"attacks_by_type"`
}

// Injector はジョブを包み、設定した割合で遅延や panic を注入する
type Injector struct {
	config   Config
	pool     string
	eventBus *events.Bus

	enabled atomic.Bool
	seq     atomic.Uint64

	mu           sync.Mutex
	rng          *rand.Rand
	attackCount  uint64
	attackByType map[AttackType]uint64
}

// New は有効状態の Injector を作成する
func New(config Config) *Injector {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if config.Ratio < 0 {
		config.Ratio = 0
	}
	if config.Ratio > 1 {
		config.Ratio = 1
	}

	inj := &Injector{
		config:       config,
		pool:         worker.DefaultPoolConfig().Name,
		rng:          rand.New(rand.NewSource(seed)),
		attackByType: make(map[AttackType]uint64),
	}
	inj.enabled.Store(true)
	return inj
}

// SetEventBus はイベントバスと発行時のプール名を設定する
func (inj *Injector) SetEventBus(bus *events.Bus, pool string) {
	inj.eventBus = bus
	if pool != "" {
		inj.pool = pool
	}
}

func (inj *Injector) publishEvent(event events.Event) {
	if inj.eventBus != nil {
		inj.eventBus.Publish(event)
	}
}

// Enable は注入を再開する
func (inj *Injector) Enable() {
	inj.enabled.Store(true)
}

// Disable は注入を止める。包まれたジョブはそのまま実行される
func (inj *Injector) Disable() {
	inj.enabled.Store(false)
}

// IsEnabled は注入が有効かどうかを返す
func (inj *Injector) IsEnabled() bool {
	return inj.enabled.Load()
}

// Wrap はジョブの実行前に障害を注入するジョブを返す
// 判定は実行時に行うため、Disable 後に実行されたジョブには注入しない
func (inj *Injector) Wrap(job worker.Job) worker.Job {
	if job.Fn == nil {
		return job
	}

	seq := inj.seq.Add(1)
	fn := job.Fn
	return worker.Job{
		Fn: func(arg any) {
			inj.inject(seq)
			fn(arg)
		},
		Arg: job.Arg,
	}
}

// inject は抽選に当たった場合に障害を発生させる
func (inj *Injector) inject(seq uint64) {
	if !inj.enabled.Load() {
		return
	}

	attackType, hit := inj.roll()
	if !hit {
		return
	}

	switch attackType {
	case AttackDelay:
		logger.Debug("chaos", "Injecting %v delay into job %d", inj.config.DelayDuration, seq)
		inj.publishEvent(events.NewFaultInjectedEvent(inj.pool, attackType.String(), inj.config.DelayDuration))
		time.Sleep(inj.config.DelayDuration)
	case AttackPanic:
		logger.Debug("chaos", "Injecting panic into job %d", seq)
		inj.publishEvent(events.NewFaultInjectedEvent(inj.pool, attackType.String(), 0))
		panic(InjectedPanic{JobSeq: seq})
	}
}

// roll は抽選を行い、当たった場合は攻撃タイプを記録して返す
func (inj *Injector) roll() (AttackType, bool) {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	if len(inj.config.AttackTypes) == 0 || inj.rng.Float64() >= inj.config.Ratio {
		return 0, false
	}

	attackType := inj.config.AttackTypes[inj.rng.Intn(len(inj.config.AttackTypes))]
	inj.attackCount++
	inj.attackByType[attackType]++
	return attackType, true
}

// AttackCount は注入回数を返す
func (inj *Injector) AttackCount() uint64 {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	return inj.attackCount
}

// Stats は注入統計を返す
func (inj *Injector) Stats() Stats {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	byType := make(map[string]uint64)
	for t, count := range inj.attackByType {
		byType[t.String()] = count
	}

	return Stats{
		Wrapped:      inj.seq.Load(),
		TotalAttacks: inj.attackCount,
		ByType:       byType,
	}
}
