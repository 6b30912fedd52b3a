package worker

import (
	"errors"

	"thpool/internal/queue"
)

var (
	// ErrAlreadyRunning は起動済みのプールに対してInitしたときに返される
	ErrAlreadyRunning = errors.New("pool is already running")
	// ErrClosed は停止したプールに対する操作で返される
	ErrClosed = errors.New("pool is closed")
	// ErrNotRunning は未初期化のプールに対する操作で返される
	ErrNotRunning = errors.New("pool is not running")
	// ErrThreadStart はワーカーの起動に失敗したときに返される
	ErrThreadStart = errors.New("failed to start worker")
	// ErrInvalidWorkerCount は負のワーカー数が指定されたときに返される
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	// ErrNilJob は関数を持たないジョブが投入されたときに返される
	ErrNilJob = errors.New("job has no function")

	// ErrAllocation はキュー拡張の失敗を表す
	ErrAllocation = queue.ErrAllocation
)
