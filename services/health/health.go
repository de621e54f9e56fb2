package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusCritical = "critical"

	depUp       = "up"
	depDown     = "down"
	depDisabled = "disabled"

	defaultTimeout = 1500 * time.Millisecond
)

// Options describes what the running instance depends on.
type Options struct {
	Service       string
	Version       string
	Environment   string
	RedisRequired bool
	StorageReady  bool
	SkipMigrate   bool
}

// ClientCounter reports live WebSocket connections.
type ClientCounter interface {
	GetClientCount() int
}

// Service aggregates health information for the /health endpoint.
type Service struct {
	db      *gorm.DB
	redis   *redis.Client
	hub     ClientCounter
	opts    Options
	started time.Time
	timeout time.Duration
}

type Report struct {
	Status        string       `json:"status"`
	Service       string       `json:"service"`
	Version       string       `json:"version"`
	Environment   string       `json:"environment"`
	Time          time.Time    `json:"time"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	UptimeHuman   string       `json:"uptime_human"`
	Dependencies  []Dependency `json:"dependencies"`
	Runtime       RuntimeStats `json:"runtime"`
}

type Dependency struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

type RuntimeStats struct {
	GoVersion      string `json:"go_version"`
	Goroutines     int    `json:"goroutines"`
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	WSClients      int    `json:"ws_clients"`
}

func NewService(db *gorm.DB, rdb *redis.Client, hub ClientCounter, opts Options) *Service {
	if strings.TrimSpace(opts.Service) == "" {
		opts.Service = "ShortStacks API"
	}
	if strings.TrimSpace(opts.Version) == "" {
		opts.Version = "1.0.0"
	}
	return &Service{db: db, redis: rdb, hub: hub, opts: opts, started: time.Now(), timeout: defaultTimeout}
}

// Report checks the dependencies and collects runtime stats.
func (s *Service) Report(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	uptime := time.Since(s.started)
	r := Report{
		Status:        StatusOK,
		Service:       s.opts.Service,
		Version:       s.opts.Version,
		Environment:   s.opts.Environment,
		Time:          time.Now().UTC(),
		UptimeSeconds: uptime.Seconds(),
		UptimeHuman:   humanizeDuration(uptime),
	}

	db, st := s.checkDatabase(ctx)
	r.Dependencies = append(r.Dependencies, db)
	r.Status = combineStatus(r.Status, st)

	rd, st := s.checkRedis(ctx)
	r.Dependencies = append(r.Dependencies, rd)
	r.Status = combineStatus(r.Status, st)

	storage := Dependency{Name: "s3", Status: depDisabled}
	if s.opts.StorageReady {
		storage.Status = depUp
	}
	r.Dependencies = append(r.Dependencies, storage)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	r.Runtime = RuntimeStats{
		GoVersion:      runtime.Version(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: mem.HeapAlloc,
		SysBytes:       mem.Sys,
	}
	if s.hub != nil {
		r.Runtime.WSClients = s.hub.GetClientCount()
	}
	return r
}

// HTTPStatus maps an overall status to the response code.
func HTTPStatus(status string) int {
	if status == StatusCritical {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func (s *Service) checkDatabase(ctx context.Context) (Dependency, string) {
	dep := Dependency{Name: "database"}
	if s.db == nil {
		dep.Status = depDown
		dep.Error = "database connection not initialised"
		return dep, StatusCritical
	}
	dep.Details = map[string]interface{}{"dialect": s.db.Dialector.Name(), "skip_migrate": s.opts.SkipMigrate}
	sqlDB, err := s.db.DB()
	if err != nil {
		dep.Status = depDown
		dep.Error = fmt.Sprintf("sql DB handle error: %v", err)
		return dep, StatusCritical
	}

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status = depDown
		dep.Error = err.Error()
		return dep, StatusCritical
	}

	stats := sqlDB.Stats()
	dep.Status = depUp
	dep.Details["open_connections"] = stats.OpenConnections
	dep.Details["in_use"] = stats.InUse
	dep.Details["idle"] = stats.Idle
	return dep, StatusOK
}

func (s *Service) checkRedis(ctx context.Context) (Dependency, string) {
	dep := Dependency{Name: "redis"}
	if s.redis == nil {
		if s.opts.RedisRequired {
			dep.Status = depDown
			dep.Error = "redis client not initialised"
			return dep, StatusDegraded
		}
		dep.Status = depDisabled
		return dep, StatusOK
	}

	start := time.Now()
	err := s.redis.Ping(ctx).Err()
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status = depDown
		dep.Error = err.Error()
		return dep, StatusDegraded
	}
	dep.Status = depUp
	dep.Details = map[string]interface{}{"address": s.redis.Options().Addr}
	return dep, StatusOK
}

func combineStatus(current, candidate string) string {
	order := map[string]int{StatusOK: 0, StatusDegraded: 1, StatusCritical: 2}
	if order[candidate] > order[current] {
		return candidate
	}
	return current
}

func humanizeDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d %= 24 * time.Hour
	hours := d / time.Hour
	d %= time.Hour
	minutes := d / time.Minute
	seconds := (d % time.Minute) / time.Second

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, " ")
}
