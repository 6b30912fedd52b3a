package queue

import (
	"errors"
)

const (
	// DefaultCapacity は初期スロット数
	DefaultCapacity = 256
	// GrowthFactor は満杯時の容量倍率
	GrowthFactor = 2
)

var (
	// ErrEmpty は空のキューからPopしたときに返される
	ErrEmpty = errors.New("queue is empty")
	// ErrAllocation は拡張後の容量が上限を超えるときに返される
	ErrAllocation = errors.New("queue allocation failed")
	// ErrReleased は解放済みのキューに対する操作で返される
	ErrReleased = errors.New("queue storage released")
)

// Config はキューの設定
type Config struct {
	InitialCapacity int // 初期容量（0以下でDefaultCapacity）
	MaxCapacity     int // 容量の上限（0で無制限）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		InitialCapacity: DefaultCapacity,
		MaxCapacity:     0,
	}
}

// Queue は容量が倍々に伸びる循環バッファのFIFOキュー
// 並行アクセスの保護は呼び出し側の責任
type Queue[T any] struct {
	items    []T
	head     int // 次に取り出す位置
	tail     int // 次に書き込む位置
	size     int
	maxCap   int
	grows    int
	released bool
}

// New は新しいキューを作成する
func New[T any](config Config) *Queue[T] {
	capacity := config.InitialCapacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{
		items:  make([]T, capacity),
		maxCap: config.MaxCapacity,
	}
}

// Push は末尾に要素を追加する
// 満杯なら容量をGrowthFactor倍に拡張する。失敗時はキューを変更しない
func (q *Queue[T]) Push(v T) error {
	if q.released {
		return ErrReleased
	}

	if q.size == len(q.items) {
		if err := q.grow(); err != nil {
			return err
		}
	}

	q.items[q.tail] = v
	q.tail = (q.tail + 1) % len(q.items)
	q.size++

	return nil
}

// grow は容量を拡張し、折り返した区間を元の容量の直後へ移す
func (q *Queue[T]) grow() error {
	oldCap := len(q.items)
	newCap := oldCap * GrowthFactor
	if q.maxCap > 0 && newCap > q.maxCap {
		return ErrAllocation
	}

	items := make([]T, newCap)
	copy(items, q.items)

	// 満杯時は tail == head。[0, tail) は head より論理的に後ろの要素
	copy(items[oldCap:], q.items[:q.tail])
	clear(items[:q.tail])

	q.items = items
	q.tail += oldCap
	q.grows++

	return nil
}

// Pop は先頭の要素を取り出す
func (q *Queue[T]) Pop() (T, error) {
	var zero T
	if q.size == 0 {
		return zero, ErrEmpty
	}

	v := q.items[q.head]
	// 借用している参照を保持し続けない
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--

	return v, nil
}

// Len は現在の要素数を返す
func (q *Queue[T]) Len() int {
	return q.size
}

// Cap は確保済みのスロット数を返す
func (q *Queue[T]) Cap() int {
	return len(q.items)
}

// Grows はこれまでの拡張回数を返す
func (q *Queue[T]) Grows() int {
	return q.grows
}

// Release は領域を解放し、破棄した要素数を返す
func (q *Queue[T]) Release() int {
	discarded := q.size
	q.items = nil
	q.head, q.tail, q.size = 0, 0, 0
	q.released = true
	return discarded
}
