package scenario

import (
	"time"

	"thpool/internal/chaos"
)

// DemoScenario はデモ用シナリオを返す
// 4ワーカーで5秒かかるジョブを12件処理する
func DemoScenario() Config {
	return Config{
		Name:          "demo",
		Description:   "Four workers sharing twelve five-second jobs",
		Workers:       4,
		QueueCapacity: 256,
		Jobs:          12,
		Producers:     1,
		JobDuration:   5 * time.Second,
		Announce:      true,
		InitRetries:   3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// QuickScenario はクイックテスト用シナリオを返す
// 短時間での動作確認用
func QuickScenario() Config {
	return Config{
		Name:          "quick",
		Description:   "Quick test for verification",
		Workers:       4,
		QueueCapacity: 256,
		Jobs:          100,
		Producers:     2,
		JobDuration:   time.Millisecond,
		InitRetries:   1,
		RetryDelay:    50 * time.Millisecond,
	}
}

// BurstScenario はキューの伸長を起こすシナリオを返す
// 少数のワーカーに対して一度に大量のジョブを投入する
func BurstScenario() Config {
	return Config{
		Name:          "burst",
		Description:   "Submit a burst far larger than the initial queue capacity",
		Workers:       2,
		QueueCapacity: 256,
		Jobs:          5000,
		Producers:     1,
		JobDuration:   100 * time.Microsecond,
		InitRetries:   3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// ProducersScenario は多数のプロデューサーによる並行投入シナリオを返す
func ProducersScenario() Config {
	return Config{
		Name:          "producers",
		Description:   "Many goroutines submitting concurrently",
		Workers:       8,
		QueueCapacity: 256,
		Jobs:          10000,
		Producers:     16,
		InitRetries:   3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// FaultyScenario は障害注入シナリオを返す
// 一部のジョブが遅延またはpanicする
func FaultyScenario() Config {
	return Config{
		Name:          "faulty",
		Description:   "Jobs randomly delayed or panicking",
		Workers:       4,
		QueueCapacity: 256,
		Jobs:          200,
		Producers:     4,
		JobDuration:   time.Millisecond,
		EnableChaos:   true,
		ChaosRatio:    0.2,
		AttackTypes:   []chaos.AttackType{chaos.AttackDelay, chaos.AttackPanic},
		ChaosDelay:    10 * time.Millisecond,
		InitRetries:   3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// IdleScenario はワーカーもジョブもないシナリオを返す
// 起動と停止だけを確認する
func IdleScenario() Config {
	return Config{
		Name:        "idle",
		Description: "Start and stop a pool with no workers and no jobs",
	}
}

// GetPreset は名前からプリセットシナリオを取得する
func GetPreset(name string) (Config, bool) {
	presets := map[string]func() Config{
		"demo":      DemoScenario,
		"quick":     QuickScenario,
		"burst":     BurstScenario,
		"producers": ProducersScenario,
		"faulty":    FaultyScenario,
		"idle":      IdleScenario,
	}

	if fn, ok := presets[name]; ok {
		return fn(), true
	}
	return Config{}, false
}

// ListPresets は利用可能なプリセット名を返す
func ListPresets() []string {
	return []string{"demo", "quick", "burst", "producers", "faulty", "idle"}
}
