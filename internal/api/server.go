package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"thpool/internal/chaos"
	"thpool/internal/events"
	"thpool/internal/logger"
	"thpool/internal/metrics"
	"thpool/internal/recovery"
	"thpool/internal/scenario"
	"thpool/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"
)

// Server はAPIサーバー
type Server struct {
	addr           string
	statusInterval time.Duration
	eventBus       *events.Bus
	registry       *prometheus.Registry

	mu         sync.RWMutex
	baseCtx    context.Context
	running    bool
	engine     *scenario.Engine
	config     scenario.Config
	cancel     context.CancelFunc
	done       chan struct{}
	lastResult *scenario.Result
	collector  prometheus.Collector
	wsClients  map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(addr string) *Server {
	return &Server{
		addr:           addr,
		statusInterval: time.Second,
		eventBus:       events.NewBusWithBuffer(1000),
		registry:       prometheus.NewRegistry(),
		baseCtx:        context.Background(),
		wsClients:      make(map[*websocket.Conn]bool),
	}
}

// SetStatusInterval は状態配信の間隔を設定する
func (s *Server) SetStatusInterval(d time.Duration) {
	if d > 0 {
		s.statusInterval = d
	}
}

// EventBus はシナリオのイベントが流れるバスを返す
func (s *Server) EventBus() *events.Bus {
	return s.eventBus
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/result", s.handleResult)
	mux.HandleFunc("/api/scenario/start", s.handleScenarioStart)
	mux.HandleFunc("/api/scenario/stop", s.handleScenarioStop)
	mux.HandleFunc("/api/presets", s.handlePresets)

	// Prometheus
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// WebSocket
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始する
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	// バックグラウンドで状態とイベントを配信
	go s.broadcastLoop(ctx)
	go s.eventLoop(ctx)

	logger.Info("api", "API Server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		s.stopScenario()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Running      bool              `json:"running"`
	ScenarioName string            `json:"scenario_name,omitempty"`
	Pool         *worker.PoolStats `json:"pool,omitempty"`
	Chaos        *chaos.Stats      `json:"chaos,omitempty"`
	Recovery     *recovery.Stats   `json:"recovery,omitempty"`
}

func (s *Server) status() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := StatusResponse{
		Running:      s.running,
		ScenarioName: s.config.Name,
	}

	if s.engine != nil {
		if pool := s.engine.Pool(); pool != nil {
			stats := pool.Stats()
			resp.Pool = &stats
		}
		resp.Chaos = s.engine.ChaosStats()
		resp.Recovery = s.engine.RecoveryStats()
	}

	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()

	var resp metrics.Snapshot
	if engine != nil {
		if snapshot := engine.Metrics(); snapshot != nil {
			resp = *snapshot
		}
	}

	s.writeJSON(w, resp)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	result := s.lastResult
	s.mu.RUnlock()

	if result == nil {
		http.Error(w, "No scenario result", http.StatusNotFound)
		return
	}

	s.writeJSON(w, result)
}

// ScenarioRequest はシナリオ開始リクエスト
type ScenarioRequest struct {
	Preset      string `json:"preset"`
	Workers     *int   `json:"workers,omitempty"`
	Jobs        int    `json:"jobs,omitempty"`
	Producers   int    `json:"producers,omitempty"`
	JobDuration string `json:"job_duration,omitempty"`
}

func (s *Server) handleScenarioStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// プリセット取得
	config := scenario.QuickScenario()
	if req.Preset != "" {
		preset, ok := scenario.GetPreset(req.Preset)
		if !ok {
			http.Error(w, "Unknown preset", http.StatusBadRequest)
			return
		}
		config = preset
	}

	// オーバーライド
	if req.Workers != nil {
		config.Workers = *req.Workers
	}
	if req.Jobs > 0 {
		config.Jobs = req.Jobs
	}
	if req.Producers > 0 {
		config.Producers = req.Producers
	}
	if req.JobDuration != "" {
		d, err := time.ParseDuration(req.JobDuration)
		if err != nil {
			http.Error(w, "Invalid job_duration", http.StatusBadRequest)
			return
		}
		config.JobDuration = d
	}
	if err := config.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "Scenario already running", http.StatusConflict)
		return
	}

	m := metrics.New()
	engine := scenario.New(config)
	engine.SetEventBus(s.eventBus)
	engine.SetMetrics(m)
	s.registerCollector(config.Name, m, engineSource{engine})

	ctx, cancel := context.WithCancel(s.baseCtx)
	done := make(chan struct{})

	s.config = config
	s.engine = engine
	s.cancel = cancel
	s.done = done
	s.running = true
	s.mu.Unlock()

	// バックグラウンドで実行
	go func() {
		defer close(done)
		defer cancel()

		result, err := engine.Run(ctx)

		s.mu.Lock()
		s.running = false
		if err == nil {
			s.lastResult = result
		}
		s.mu.Unlock()

		if err != nil {
			logger.Error("api", "Scenario failed: %v", err)
			s.broadcast(map[string]any{
				"type":  "scenario_failed",
				"error": err.Error(),
			})
			return
		}

		logger.Info("api", "Scenario completed: %d jobs", result.Completed)
		s.broadcast(map[string]any{
			"type":   "scenario_complete",
			"result": result,
		})
	}()

	s.writeJSON(w, map[string]string{"status": "started", "scenario": config.Name})
}

// registerCollector は実行中のシナリオの Collector に差し替える
// mu を保持した状態で呼ぶ
func (s *Server) registerCollector(pool string, m *metrics.Metrics, source metrics.GaugeSource) {
	if s.collector != nil {
		s.registry.Unregister(s.collector)
	}
	collector := metrics.NewCollector(pool, m, source)
	if err := s.registry.Register(collector); err != nil {
		logger.Warn("api", "Failed to register collector: %v", err)
		s.collector = nil
		return
	}
	s.collector = collector
}

func (s *Server) handleScenarioStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.stopScenario() {
		http.Error(w, "No scenario running", http.StatusBadRequest)
		return
	}

	s.writeJSON(w, map[string]string{"status": "stop requested"})
}

// stopScenario は実行中のシナリオをキャンセルする。実行中でなければ false を返す
func (s *Server) stopScenario() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// PresetInfo はプリセット情報
type PresetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Workers     int    `json:"workers"`
	Jobs        int    `json:"jobs"`
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var presets []PresetInfo
	for _, name := range scenario.ListPresets() {
		config, _ := scenario.GetPreset(name)
		presets = append(presets, PresetInfo{
			Name:        name,
			Description: config.Description,
			Workers:     config.Workers,
			Jobs:        config.Jobs,
		})
	}

	s.writeJSON(w, presets)
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.status()
			if !status.Running {
				continue
			}

			s.broadcast(map[string]any{
				"type":   "status",
				"status": status,
			})
		}
	}
}

// eventLoop はバスのイベントをWebSocketクライアントへ中継する
func (s *Server) eventLoop(ctx context.Context) {
	ch := s.eventBus.Subscribe()
	defer s.eventBus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(map[string]any{
				"type":  "event",
				"event": ev,
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("api", "Failed to encode JSON: %v", err)
	}
}

// engineSource はエンジンの現在のプールからゲージを読む
type engineSource struct {
	engine *scenario.Engine
}

func (e engineSource) pool() *worker.Pool {
	return e.engine.Pool()
}

func (e engineSource) Alive() int {
	if p := e.pool(); p != nil {
		return p.Alive()
	}
	return 0
}

func (e engineSource) Executing() int {
	if p := e.pool(); p != nil {
		return p.Executing()
	}
	return 0
}

func (e engineSource) QueueLen() int {
	if p := e.pool(); p != nil {
		return p.QueueLen()
	}
	return 0
}

func (e engineSource) QueueCap() int {
	if p := e.pool(); p != nil {
		return p.QueueCap()
	}
	return 0
}
