// Package scheduler runs the recurring background jobs: the auto-complete
// sweep that finalizes unanswered completions, and cache housekeeping.
// Jobs are declared in an optional YAML file and run on fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/skillswap/swapd/internal/cache"
	"github.com/skillswap/swapd/internal/completion"
)

// Job types known to the dispatcher.
const (
	JobAutoComplete     = "swaps.autocomplete"
	JobCacheHousekeep   = "cache.housekeeping"
	defaultSweepEvery   = time.Minute
	defaultHousekeeping = 5 * time.Minute
)

// Job is one recurring job declaration.
type Job struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Every       string `yaml:"every"` // Go duration string, e.g. "1m"
	Description string `yaml:"description,omitempty"`
	Enabled     bool   `yaml:"enabled"`

	interval time.Duration
}

// Config is the jobs file payload.
type Config struct {
	Jobs []Job `yaml:"jobs"`
}

// DefaultConfig is used when no jobs file is configured: the sweep every
// minute and cache housekeeping every five.
func DefaultConfig() Config {
	return Config{Jobs: []Job{
		{
			Name:        "autocomplete-sweep",
			Type:        JobAutoComplete,
			Every:       defaultSweepEvery.String(),
			Description: "finalize pending completions past their window",
			Enabled:     true,
		},
		{
			Name:        "cache-housekeeping",
			Type:        JobCacheHousekeep,
			Every:       defaultHousekeeping.String(),
			Description: "drop expired in-process cache entries",
			Enabled:     true,
		},
	}}
}

// LoadConfig reads the jobs file, falling back to DefaultConfig when path
// is empty.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read jobs file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse jobs file: %w", err)
	}
	return cfg, nil
}

// Deps carries what the job runners act on.
type Deps struct {
	Completion *completion.Service
	Cache      cache.Cache
}

// JobResult reports one job execution.
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	// Affected counts what the job touched: swaps finalized, cache
	// entries dropped.
	Affected int `json:"affected"`
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Running      bool          `json:"running"`
	EnabledJobs  int           `json:"enabled_jobs"`
	DisabledJobs int           `json:"disabled_jobs"`
	Uptime       time.Duration `json:"uptime"`
	LastRun      time.Time     `json:"last_run,omitempty"`
}

// Scheduler owns the job loops.
type Scheduler struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	mu        sync.Mutex
	running   bool
	startTime time.Time
	lastRun   time.Time

	now func() time.Time
}

// New validates cfg and builds the scheduler.
func New(cfg Config, deps Deps, log zerolog.Logger) (*Scheduler, error) {
	for i := range cfg.Jobs {
		job := &cfg.Jobs[i]
		if job.Name == "" {
			return nil, fmt.Errorf("job %d has no name", i)
		}
		switch job.Type {
		case JobAutoComplete, JobCacheHousekeep:
		default:
			return nil, fmt.Errorf("job %q has unknown type %q", job.Name, job.Type)
		}
		if job.Every == "" {
			job.Every = defaultSweepEvery.String()
		}
		d, err := time.ParseDuration(job.Every)
		if err != nil {
			return nil, fmt.Errorf("job %q: bad interval %q: %w", job.Name, job.Every, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("job %q: interval must be positive, got %q", job.Name, job.Every)
		}
		job.interval = d
	}
	return &Scheduler{
		cfg:  cfg,
		deps: deps,
		log:  log.With().Str("component", "scheduler").Logger(),
		now:  time.Now,
	}, nil
}

// Jobs returns the configured jobs.
func (s *Scheduler) Jobs() []Job {
	return s.cfg.Jobs
}

// Status reports the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.running, LastRun: s.lastRun}
	for _, job := range s.cfg.Jobs {
		if job.Enabled {
			st.EnabledJobs++
		} else {
			st.DisabledJobs++
		}
	}
	if s.running {
		st.Uptime = s.now().Sub(s.startTime)
	}
	return st
}

// Start runs every enabled job on its interval until ctx is cancelled.
// Job failures are logged, not fatal; only cancellation stops the loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.startTime = s.now()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	enabled := 0
	g, ctx := errgroup.WithContext(ctx)
	for i := range s.cfg.Jobs {
		job := s.cfg.Jobs[i]
		if !job.Enabled {
			continue
		}
		enabled++
		g.Go(func() error { return s.loop(ctx, job) })
	}
	s.log.Info().Int("jobs", enabled).Msg("scheduler started")
	if enabled == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) error {
	ticker := time.NewTicker(job.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res := s.run(ctx, &job)
			if !res.Success {
				s.log.Error().Str("job", job.Name).Str("error", res.Error).
					Msg("job failed")
			}
		}
	}
}

// RunJob executes the named job once, regardless of its schedule or
// enabled flag. The sweep CLI command uses this.
func (s *Scheduler) RunJob(ctx context.Context, name string) (*JobResult, error) {
	for i := range s.cfg.Jobs {
		if s.cfg.Jobs[i].Name == name {
			return s.run(ctx, &s.cfg.Jobs[i]), nil
		}
	}
	return nil, fmt.Errorf("job not found: %s", name)
}

func (s *Scheduler) run(ctx context.Context, job *Job) *JobResult {
	start := s.now()
	res := &JobResult{JobName: job.Name, StartTime: start, Success: true}

	affected, err := s.execute(ctx, job)
	res.Affected = affected
	if err != nil {
		res.Success = false
		res.Error = err.Error()
	}
	res.EndTime = s.now()
	res.Duration = res.EndTime.Sub(start)

	s.mu.Lock()
	s.lastRun = res.EndTime
	s.mu.Unlock()

	s.log.Debug().Str("job", job.Name).Int("affected", affected).
		Dur("elapsed", res.Duration).Bool("success", res.Success).
		Msg("job finished")
	return res
}

func (s *Scheduler) execute(ctx context.Context, job *Job) (int, error) {
	switch job.Type {
	case JobAutoComplete:
		return s.deps.Completion.SweepAutoComplete(ctx)
	case JobCacheHousekeep:
		return s.housekeepCache(), nil
	}
	return 0, fmt.Errorf("unknown job type: %s", job.Type)
}

// housekeepCache prunes expired entries from caches that support it. The
// Redis cache expires keys itself and is skipped.
func (s *Scheduler) housekeepCache() int {
	pruner, ok := s.deps.Cache.(interface{ Prune() int })
	if !ok {
		return 0
	}
	return pruner.Prune()
}
