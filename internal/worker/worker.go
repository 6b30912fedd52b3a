package worker

import (
	"fmt"
	"runtime/debug"
	"time"

	"thpool/internal/events"
	"thpool/internal/logger"
)

// work は個々のワーカーゴルーチン
func (p *Pool) work(h *handle) {
	defer close(h.done)

	p.mu.Lock()
	p.alive++
	p.mu.Unlock()

	logger.Debug(h.tag, "Worker started")
	p.publish(events.NewWorkerStartedEvent(p.name, h.id))

	for p.next(h) {
	}

	p.mu.Lock()
	p.alive--
	if p.alive == 0 {
		p.exited.Broadcast()
	}
	p.mu.Unlock()

	logger.Debug(h.tag, "Worker exited")
	p.publish(events.NewWorkerExitedEvent(p.name, h.id))
}

// next はジョブを1つ取り出して実行する。停止時は false を返す
func (p *Pool) next(h *handle) bool {
	p.mu.Lock()
	for p.queue.Len() == 0 && p.running {
		p.workAvailable.Wait()
	}
	if !p.running {
		p.mu.Unlock()
		return false
	}

	p.executing++
	job, err := p.queue.Pop()
	p.mu.Unlock()

	// ジョブはロックの外で実行する
	if err != nil {
		logger.Error(h.tag, "Pop failed on a non-empty queue: %v", err)
	} else {
		p.execute(h, job)
	}

	p.mu.Lock()
	p.executing--
	idle := p.executing == 0
	drained := idle && p.queue.Len() == 0
	if idle {
		p.drained.Broadcast()
	}
	p.mu.Unlock()

	if drained {
		p.publish(events.NewDrainedEvent(p.name))
	}
	return true
}

// execute はジョブを実行する。panicは回収してワーカーを存続させる
func (p *Pool) execute(h *handle, job Job) {
	start := time.Now()

	defer func() {
		elapsed := time.Since(start)
		if r := recover(); r != nil {
			logger.Error(h.tag, "Job panicked: %v\n%s", r, debug.Stack())
			if m := p.config.Metrics; m != nil {
				m.RecordPanic(elapsed)
			}
			p.publish(events.NewJobPanickedEvent(p.name, h.id, fmt.Errorf("%v", r)))
			return
		}
		if m := p.config.Metrics; m != nil {
			m.RecordCompletion(elapsed)
		}
	}()

	job.Fn(job.Arg)
}
