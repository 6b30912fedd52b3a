// Package events provides pool lifecycle notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventPoolStarted is emitted when Init has started every worker
	EventPoolStarted EventType = "pool_started"
	// EventPoolStopped is emitted when Shutdown has joined every worker
	EventPoolStopped EventType = "pool_stopped"
	// EventWorkerStarted is emitted when a worker registers itself as alive
	EventWorkerStarted EventType = "worker_started"
	// EventWorkerExited is emitted when a worker leaves its loop
	EventWorkerExited EventType = "worker_exited"
	// EventQueueGrown is emitted when a submit doubles the queue capacity
	EventQueueGrown EventType = "queue_grown"
	// EventJobPanicked is emitted when a job panics inside a worker
	EventJobPanicked EventType = "job_panicked"
	// EventDrained is emitted when the last executing worker goes idle on an empty queue
	EventDrained EventType = "drained"
	// EventFaultInjected is emitted when the fault injector delays or breaks a job
	EventFaultInjected EventType = "fault_injected"
	// EventScenarioStarted is emitted when a workload run begins
	EventScenarioStarted EventType = "scenario_started"
	// EventScenarioFinished is emitted when a workload run ends
	EventScenarioFinished EventType = "scenario_finished"
)

// Event represents a pool event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Pool      string    `json:"pool"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	WorkerID  int    `json:"worker_id,omitempty"`
	Workers   int    `json:"workers,omitempty"`
	Capacity  int    `json:"capacity,omitempty"`
	Discarded int    `json:"discarded,omitempty"`
	Error     string `json:"error,omitempty"`

	Fault    string        `json:"fault,omitempty"`
	Delay    time.Duration `json:"delay,omitempty"`
	Scenario string        `json:"scenario,omitempty"`
	Jobs     int           `json:"jobs,omitempty"`
}

// NewPoolStartedEvent creates a pool started event
func NewPoolStartedEvent(pool string, workers int) Event {
	return Event{
		Type:      EventPoolStarted,
		Timestamp: time.Now(),
		Pool:      pool,
		Data: EventData{
			Workers: workers,
		},
	}
}

// NewPoolStoppedEvent creates a pool stopped event carrying the number of queued jobs dropped
func NewPoolStoppedEvent(pool string, discarded int) Event {
	return Event{
		Type:      EventPoolStopped,
		Timestamp: time.Now(),
		Pool:      pool,
		Data: EventData{
			Discarded: discarded,
		},
	}
}

// NewWorkerStartedEvent creates a worker started event
func NewWorkerStartedEvent(pool string, workerID int) Event {
	return Event{
		Type:      EventWorkerStarted,
		Timestamp: time.Now(),
		Pool:      pool,
		Data: EventData{
			WorkerID: workerID,
		},
	}
}

// NewWorkerExitedEvent creates a worker exited event
func NewWorkerExitedEvent(pool string, workerID int) Event {
	return Event{
		Type:      EventWorkerExited,
		Timestamp: time.Now(),
		Pool:      pool,
		Data: EventData{
			WorkerID: workerID,
		},
	}
}

// NewQueueGrownEvent creates a queue grown event
func NewQueueGrownEvent(pool string, capacity int) Event {
	return Event{
		Type:      EventQueueGrown,
		Timestamp: time.Now(),
		Pool:      pool,
		Data: EventData{
			Capacity: capacity,
		},
	}
}

// NewJobPanickedEvent creates a job panicked event
func NewJobPanickedEvent(pool string, workerID int, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventJobPanicked,
		Timestamp: time.Now(),
		Pool:      pool,
		Data: EventData{
			WorkerID: workerID,
			Error:    errMsg,
		},
	}
}

// NewDrainedEvent creates a drained event
func NewDrainedEvent(pool string) Event {
	return Event{
		Type:      EventDrained,
		Timestamp: time.Now(),
		Pool:      pool,
	}
}

// NewFaultInjectedEvent creates a fault injected event
func NewFaultInjectedEvent(pool, fault string, delay time.Duration) Event {
	return Event{
		Type:      EventFaultInjected,
		Timestamp: time.Now(),
		Pool:      pool,
		Data: EventData{
			Fault: fault,
			Delay: delay,
		},
	}
}

// NewScenarioStartedEvent creates a scenario started event
func NewScenarioStartedEvent(pool, scenario string, workers, jobs int) Event {
	return Event{
		Type:      EventScenarioStarted,
		Timestamp: time.Now(),
		Pool:      pool,
		Data: EventData{
			Scenario: scenario,
			Workers:  workers,
			Jobs:     jobs,
		},
	}
}

// NewScenarioFinishedEvent creates a scenario finished event.
// err is non-nil when the run was cancelled or failed.
func NewScenarioFinishedEvent(pool, scenario string, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventScenarioFinished,
		Timestamp: time.Now(),
		Pool:      pool,
		Data: EventData{
			Scenario: scenario,
			Error:    errMsg,
		},
	}
}
