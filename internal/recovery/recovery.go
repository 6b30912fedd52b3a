package recovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"thpool/internal/logger"
	"thpool/internal/worker"
)

// Config は Manager の設定
type Config struct {
	RecoveryDelay time.Duration // 再試行までの待機時間
	MaxRetries    int           // 最大リトライ回数（0でリトライしない）
	Backoff       float64       // 待機時間の倍率（1未満は1とみなす）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		RecoveryDelay: 100 * time.Millisecond,
		MaxRetries:    3,
		Backoff:       2,
	}
}

// Stats は起動リトライの統計
type Stats struct {
	TotalAttempts     uint64 `json:"total_attempts"`
	TotalRecoveries   uint64 `json:"total_recoveries"`
	SuccessRecoveries uint64 `json:"success_recoveries"`
	FailedRecoveries  uint64 `json:"failed_recoveries"`
}

// Initializer はワーカーを起動できるプール
type Initializer interface {
	Init(n int) error
	Name() string
}

// Manager はワーカー起動の失敗から復旧する
// ErrThreadStart はプールがロールバック済みで再試行できるため、待機してから Init をやり直す
type Manager struct {
	mu     sync.Mutex
	config Config
	stats  Stats
}

// New は新しい Manager を作成する
func New(config Config) *Manager {
	if config.Backoff < 1 {
		config.Backoff = 1
	}
	return &Manager{config: config}
}

// Init は n 個のワーカーでプールを起動する
// ErrThreadStart 以外のエラーは再試行せずに返す
func (m *Manager) Init(ctx context.Context, pool Initializer, n int) error {
	m.mu.Lock()
	config := m.config
	m.mu.Unlock()

	delay := config.RecoveryDelay
	retrying := false

	for attempt := 0; ; attempt++ {
		m.record(func(s *Stats) { s.TotalAttempts++ })

		err := pool.Init(n)
		if err == nil {
			if retrying {
				m.record(func(s *Stats) { s.SuccessRecoveries++ })
				logger.Info(pool.Name(), "Workers started after %d retries", attempt)
			}
			return nil
		}

		if !errors.Is(err, worker.ErrThreadStart) {
			return err
		}
		if attempt >= config.MaxRetries {
			if retrying {
				m.record(func(s *Stats) { s.FailedRecoveries++ })
			}
			logger.Error(pool.Name(), "Giving up starting workers after %d attempts: %v", attempt+1, err)
			return err
		}

		if !retrying {
			retrying = true
			m.record(func(s *Stats) { s.TotalRecoveries++ })
		}
		logger.Warn(pool.Name(), "Worker start failed (attempt %d), retrying in %v: %v", attempt+1, delay, err)

		select {
		case <-ctx.Done():
			m.record(func(s *Stats) { s.FailedRecoveries++ })
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * config.Backoff)
	}
}

func (m *Manager) record(fn func(*Stats)) {
	m.mu.Lock()
	fn(&m.stats)
	m.mu.Unlock()
}

// Stats は復旧統計を返す
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// SetConfig は設定を更新する
func (m *Manager) SetConfig(config Config) {
	if config.Backoff < 1 {
		config.Backoff = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

// ResetStats は統計をリセットする
func (m *Manager) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{}
}
