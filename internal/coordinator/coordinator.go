package coordinator

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-coordinator/internal/metrics"
)

// Event topics for the optional publisher.
const (
	TopicRunEvents  = "crawl-run-events"
	TopicPageEvents = "crawl-page-events"
)

// Maintenance thresholds.
const (
	domainIdleEvictionMs = int64(time.Hour / time.Millisecond)
	stalledRunMs         = int64(30 * time.Minute / time.Millisecond)
)

// maxBatchSize caps a single request-work dispatch regardless of what the
// worker asks for.
const maxBatchSize = 100

// Coordinator owns the control-plane state for all runs. Every operation
// follows the same shape: resolve the run handle, hydrate it from the
// snapshot store on first touch, mutate under the per-run lock, persist,
// then fire best-effort side effects. A failed persist means the operation
// failed; in-memory state is rebuilt from the last good snapshot on the
// next touch.
type Coordinator struct {
	snapshots SnapshotStore
	pages     PageStore
	publisher Publisher
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
	jitter    func() float64

	mu   sync.Mutex
	runs map[string]*runHandle
}

// runHandle is the in-memory working set for one run. Its mutex serializes
// every operation touching the run, read or write, so the snapshot written
// at the end of a mutation always reflects a single consistent state.
type runHandle struct {
	mu           sync.Mutex
	hydrated     bool
	run          *RunState
	frontier     *Frontier
	visited      *VisitedIndex
	domains      map[string]*DomainState
	recentErrors []CrawlError
	window       dispatchWindow
	scope        *scopeMatcher
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// randomIDs is the fallback generator when none is injected.
type randomIDs struct{}

func (randomIDs) NewID() (string, error) { return uuid.NewString(), nil }

// New creates a Coordinator. pages and publisher may be nil, in which case
// page metadata and events are skipped. A nil clock falls back to wall
// time, a nil generator to random UUIDs.
func New(snapshots SnapshotStore, pages PageStore, publisher Publisher, clock Clock, ids IDGenerator, logger *zap.Logger) *Coordinator {
	if clock == nil {
		clock = clockFunc(time.Now)
	}
	if ids == nil {
		ids = randomIDs{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		snapshots: snapshots,
		pages:     pages,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		logger:    logger,
		jitter:    rand.Float64,
		runs:      make(map[string]*runHandle),
	}
}

func (c *Coordinator) nowMs() int64 {
	return c.clock.Now().UnixMilli()
}

// RunIDs lists the runs currently resident in memory, sorted.
func (c *Coordinator) RunIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.runs))
	for id := range c.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Coordinator) handle(runID string) *runHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.runs[runID]
	if !ok {
		h = &runHandle{}
		c.runs[runID] = h
	}
	return h
}

// acquire resolves the handle for runID and hydrates it under its lock.
// The caller must release h.mu when done.
func (c *Coordinator) acquire(ctx context.Context, runID string) (*runHandle, error) {
	if runID == "" {
		return nil, Errorf(CodeInvalidRequest, "runId must not be empty")
	}
	h := c.handle(runID)
	h.mu.Lock()
	if err := c.hydrate(ctx, runID, h); err != nil {
		h.mu.Unlock()
		return nil, err
	}
	return h, nil
}

// hydrate populates the handle from the snapshot store on first touch.
// Missing slots fall back to empty defaults so a partially aged snapshot
// still produces a usable run.
func (c *Coordinator) hydrate(ctx context.Context, runID string, h *runHandle) error {
	if h.hydrated {
		return nil
	}
	snap, found, err := c.snapshots.Load(ctx, runID)
	if err != nil {
		return fmt.Errorf("load snapshot for run %s: %w", runID, err)
	}
	if found && snap.RunState != nil {
		run := *snap.RunState
		run.ID = runID
		h.run = &run
	} else {
		h.run = &RunState{ID: runID, Status: RunStatusPending, Config: DefaultConfig()}
	}
	h.frontier = RestoreFrontier(snap.PendingQueue)
	h.visited = RestoreVisitedIndex(snap.VisitedURLs)
	h.domains = make(map[string]*DomainState, len(snap.DomainStates))
	for domain, state := range snap.DomainStates {
		ds := state
		h.domains[domain] = &ds
	}
	h.recentErrors = append([]CrawlError(nil), snap.RecentErrors...)
	h.scope = newScopeMatcher(h.run.Config.Scope)
	h.hydrated = true
	if found {
		c.logger.Debug("hydrated run from snapshot",
			zap.String("run", runID),
			zap.String("status", string(h.run.Status)),
			zap.Int("queueSize", h.frontier.Size()),
			zap.Int("visited", h.visited.Len()))
	}
	return nil
}

// persist writes the five snapshot slots atomically. Called at the tail of
// every mutating operation, before any external side effect.
func (c *Coordinator) persist(ctx context.Context, runID string, h *runHandle) error {
	domains := make(map[string]DomainState, len(h.domains))
	for domain, ds := range h.domains {
		domains[domain] = *ds
	}
	run := *h.run
	snap := Snapshot{
		PendingQueue: h.frontier.Export(),
		VisitedURLs:  h.visited.Export(),
		DomainStates: domains,
		RunState:     &run,
		RecentErrors: append([]CrawlError(nil), h.recentErrors...),
	}
	if err := c.snapshots.Save(ctx, runID, snap); err != nil {
		h.hydrated = false
		return fmt.Errorf("save snapshot for run %s: %w", runID, err)
	}
	metrics.SetFrontierSize(runID, h.frontier.Size())
	return nil
}

func (h *runHandle) ensureDomain(domain string) *DomainState {
	ds, ok := h.domains[domain]
	if !ok {
		ds = &DomainState{}
		h.domains[domain] = ds
	}
	return ds
}

// Admission rejection reasons, also used as metric labels.
const (
	rejectInvalidURL   = "invalid_url"
	rejectDepth        = "max_depth"
	rejectVisited      = "already_visited"
	rejectQueued       = "already_queued"
	rejectQueueFull    = "queue_full"
	rejectCrossDomain  = "cross_domain"
	rejectScopeDomain  = "domain_scope"
	rejectScopePattern = "url_pattern"
)

// admit runs the admission pipeline for one candidate URL and pushes it
// onto the frontier when every check passes. The returned reason is empty
// on success.
func (h *runHandle) admit(raw string, depth, priority int, now int64) string {
	cfg := h.run.Config
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return rejectInvalidURL
	}
	if depth > cfg.Behavior.MaxDepth {
		return rejectDepth
	}
	domain := DomainOf(normalized)
	if _, ok := h.scope.AllowsDomain(domain); !ok {
		return rejectScopeDomain
	}
	if _, ok := h.scope.AllowsURL(normalized); !ok {
		return rejectScopePattern
	}
	if h.visited.Contains(normalized) {
		return rejectVisited
	}
	if h.frontier.Contains(normalized) {
		return rejectQueued
	}
	if h.frontier.Size() >= cfg.Behavior.MaxQueueSize {
		return rejectQueueFull
	}
	h.frontier.Push(QueuedURL{
		URL:      normalized,
		Domain:   domain,
		Depth:    depth,
		AddedAt:  now,
		Priority: priority,
	})
	return ""
}

// Seed admits the given URLs, by default at depth zero with priority zero.
// Rejections are counted, not errors; seeding a run that is already
// terminal is rejected.
func (c *Coordinator) Seed(ctx context.Context, runID string, urls []string, depth, priority int) (SeedResult, error) {
	if len(urls) == 0 {
		return SeedResult{}, Errorf(CodeInvalidRequest, "urls must not be empty")
	}
	h, err := c.acquire(ctx, runID)
	if err != nil {
		return SeedResult{}, err
	}
	defer h.mu.Unlock()

	if h.run.Status.IsTerminal() {
		return SeedResult{}, Errorf(CodeRunCompleted, "run %s is %s", runID, h.run.Status)
	}

	now := c.nowMs()
	admitted := 0
	rejected := map[string]int{}
	if depth < 0 {
		depth = 0
	}
	for _, raw := range urls {
		if reason := h.admit(raw, depth, priority, now); reason != "" {
			rejected[reason]++
			continue
		}
		admitted++
	}
	h.run.Stats.URLsQueued += int64(admitted)
	h.run.LastActivityAt = now

	if err := c.persist(ctx, runID, h); err != nil {
		return SeedResult{}, err
	}
	metrics.ObserveAdmission(runID, admitted, rejected)
	c.logger.Info("seeded run",
		zap.String("run", runID),
		zap.Int("admitted", admitted),
		zap.Int("rejected", countRejections(rejected)),
		zap.Int("queueSize", h.frontier.Size()))
	return SeedResult{
		Admitted:  admitted,
		Rejected:  countRejections(rejected),
		QueueSize: h.frontier.Size(),
	}, nil
}

func countRejections(rejected map[string]int) int {
	total := 0
	for _, n := range rejected {
		total += n
	}
	return total
}

// Configure validates and applies a partial config update, assigning a
// fresh config ID. Updates take effect on the next dispatch.
func (c *Coordinator) Configure(ctx context.Context, runID string, patch ConfigPatch, name string) (ConfigRef, error) {
	if err := patch.Validate(); err != nil {
		return ConfigRef{}, err
	}
	h, err := c.acquire(ctx, runID)
	if err != nil {
		return ConfigRef{}, err
	}
	defer h.mu.Unlock()

	configID, err := c.ids.NewID()
	if err != nil {
		return ConfigRef{}, fmt.Errorf("generate config id: %w", err)
	}
	h.run.Config = patch.Apply(h.run.Config)
	h.run.ConfigID = configID
	if name != "" {
		h.run.ConfigName = name
	}
	h.scope = newScopeMatcher(h.run.Config.Scope)

	if err := c.persist(ctx, runID, h); err != nil {
		return ConfigRef{}, err
	}
	c.logger.Info("applied config",
		zap.String("run", runID),
		zap.String("configId", h.run.ConfigID),
		zap.String("configName", h.run.ConfigName))
	return ConfigRef{ID: h.run.ConfigID, Name: h.run.ConfigName}, nil
}

// Config returns the effective configuration for a run.
func (c *Coordinator) Config(ctx context.Context, runID string) (CrawlConfig, ConfigRef, error) {
	h, err := c.acquire(ctx, runID)
	if err != nil {
		return CrawlConfig{}, ConfigRef{}, err
	}
	defer h.mu.Unlock()
	return h.run.Config, ConfigRef{ID: h.run.ConfigID, Name: h.run.ConfigName}, nil
}

// Start transitions the run to running.
func (c *Coordinator) Start(ctx context.Context, runID string) (RunState, error) {
	return c.transition(ctx, runID, "run started", func(run *RunState, now int64) error {
		return run.Start(now)
	})
}

// Pause transitions the run to paused. In-flight workers may still report
// results for URLs dispatched before the pause.
func (c *Coordinator) Pause(ctx context.Context, runID string) (RunState, error) {
	return c.transition(ctx, runID, "run paused", func(run *RunState, now int64) error {
		return run.Pause(now)
	})
}

// Resume transitions a paused run back to running.
func (c *Coordinator) Resume(ctx context.Context, runID string) (RunState, error) {
	return c.transition(ctx, runID, "run resumed", func(run *RunState, now int64) error {
		return run.Resume(now)
	})
}

// Cancel transitions any non-terminal run to cancelled.
func (c *Coordinator) Cancel(ctx context.Context, runID string) (RunState, error) {
	return c.transition(ctx, runID, "run cancelled", func(run *RunState, now int64) error {
		return run.Cancel(now)
	})
}

func (c *Coordinator) transition(ctx context.Context, runID, event string, apply func(*RunState, int64) error) (RunState, error) {
	h, err := c.acquire(ctx, runID)
	if err != nil {
		return RunState{}, err
	}
	defer h.mu.Unlock()

	now := c.nowMs()
	if err := apply(h.run, now); err != nil {
		return RunState{}, err
	}
	if err := c.persist(ctx, runID, h); err != nil {
		return RunState{}, err
	}
	c.logger.Info(event, zap.String("run", runID), zap.String("status", string(h.run.Status)))
	c.publishRunEvent(ctx, runID, string(h.run.Status), now)
	return *h.run, nil
}

// Reset returns the run to pending and clears the frontier, visited index,
// domain states, recent errors, and the dispatch window. Configuration is
// preserved.
func (c *Coordinator) Reset(ctx context.Context, runID string) (RunState, error) {
	h, err := c.acquire(ctx, runID)
	if err != nil {
		return RunState{}, err
	}
	defer h.mu.Unlock()

	h.run.Reset()
	h.frontier.Clear()
	h.visited = NewVisitedIndex()
	h.domains = make(map[string]*DomainState)
	h.recentErrors = nil
	h.window = dispatchWindow{}

	if err := c.persist(ctx, runID, h); err != nil {
		return RunState{}, err
	}
	now := c.nowMs()
	c.logger.Info("run reset", zap.String("run", runID))
	c.publishRunEvent(ctx, runID, "reset", now)
	return *h.run, nil
}

// RequestWork hands out up to batchSize URLs honoring per-domain delay,
// backoff, the one-URL-per-domain-per-batch rule, and the global dispatch
// window. A run that is not running receives an empty batch, not an error.
// Dispatched URLs are marked visited immediately; a worker crash means the
// URL is never retried, which keeps re-dispatch impossible.
func (c *Coordinator) RequestWork(ctx context.Context, runID string, batchSize int, workerID string) (WorkBatch, error) {
	h, err := c.acquire(ctx, runID)
	if err != nil {
		return WorkBatch{}, err
	}
	defer h.mu.Unlock()

	cfg := h.run.Config
	batch := WorkBatch{QueueSize: h.frontier.Size(), Config: cfg.WorkerView()}
	if h.run.Status != RunStatusRunning {
		return batch, nil
	}

	now := c.nowMs()
	if c.pageCapReached(h) {
		h.run.Complete(now)
		if err := c.persist(ctx, runID, h); err != nil {
			return WorkBatch{}, err
		}
		c.publishRunEvent(ctx, runID, string(h.run.Status), now)
		return batch, nil
	}

	limit := batchSize
	if limit <= 0 {
		limit = cfg.Behavior.DefaultBatchSize
	}
	if limit > maxBatchSize {
		limit = maxBatchSize
	}

	granted := make(map[string]struct{}, limit)
	taken := h.frontier.Take(limit, func(item QueuedURL) bool {
		if _, dup := granted[item.Domain]; dup {
			return false
		}
		if h.window.Full(cfg.RateLimit.GlobalRateLimitPerMinute, now) {
			return false
		}
		ds := h.domains[item.Domain]
		if ds != nil {
			if ds.BackoffUntil > now {
				return false
			}
			if ds.LastFetchAt > 0 && now-ds.LastFetchAt < effectiveMinDelay(cfg.RateLimit, c.jitter()) {
				return false
			}
		}
		ds = h.ensureDomain(item.Domain)
		ds.LastFetchAt = now
		ds.RequestCount++
		h.visited.Insert(item.URL)
		h.window.Record(now)
		granted[item.Domain] = struct{}{}
		return true
	})

	items := make([]WorkItem, 0, len(taken))
	for _, q := range taken {
		items = append(items, WorkItem{
			URL:        q.URL,
			Depth:      q.Depth,
			Priority:   q.Priority,
			RetryCount: q.RetryCount,
		})
	}
	batch.URLs = items
	batch.QueueSize = h.frontier.Size()

	if len(items) > 0 {
		h.run.LastActivityAt = now
	} else if h.frontier.Size() == 0 {
		// Frontier drained and nothing new can arrive from this batch.
		h.run.Complete(now)
	}

	if err := c.persist(ctx, runID, h); err != nil {
		return WorkBatch{}, err
	}
	metrics.ObserveDispatch(runID, len(items))
	if h.run.Status == RunStatusCompleted {
		c.publishRunEvent(ctx, runID, string(h.run.Status), now)
	}
	c.logger.Debug("dispatched batch",
		zap.String("run", runID),
		zap.String("worker", workerID),
		zap.Int("urls", len(items)),
		zap.Int("queueSize", batch.QueueSize))
	return batch, nil
}

func (c *Coordinator) pageCapReached(h *runHandle) bool {
	limit := h.run.Config.Behavior.MaxPagesPerRun
	return limit > 0 && h.run.Stats.URLsFetched+h.run.Stats.URLsFailed >= limit
}

// ReportResult applies one worker result: domain accounting, backoff on
// failure, stats and progress, and admission of discovered links at the
// parent depth plus one. Reports are accepted while the run is running or
// paused so in-flight work is never lost.
func (c *Coordinator) ReportResult(ctx context.Context, runID string, report ResultReport) error {
	if report.URL == "" {
		return Errorf(CodeInvalidRequest, "url must not be empty")
	}
	h, err := c.acquire(ctx, runID)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()

	switch h.run.Status {
	case RunStatusRunning, RunStatusPaused:
	case RunStatusPending:
		return Errorf(CodeRunNotRunning, "run %s is %s", runID, h.run.Status)
	default:
		return Errorf(CodeRunCompleted, "run %s is %s", runID, h.run.Status)
	}

	cfg := h.run.Config
	now := c.nowMs()
	normalized, nerr := NormalizeURL(report.URL)
	if nerr != nil {
		normalized = report.URL
	}
	domain := DomainOf(normalized)
	ds := h.ensureDomain(domain)
	failed := report.Failed()

	if failed {
		ds.ErrorCount++
		ds.BackoffUntil = nextBackoff(cfg.RateLimit, ds.ErrorCount, now)
		h.run.Stats.URLsFailed++
		h.recentErrors = append(h.recentErrors, CrawlError{
			URL:        normalized,
			Domain:     domain,
			StatusCode: report.Status,
			Message:    errorMessage(report),
			Timestamp:  now,
		})
		if len(h.recentErrors) > MaxRecentErrors {
			h.recentErrors = h.recentErrors[len(h.recentErrors)-MaxRecentErrors:]
		}
	} else {
		ds.SuccessCount++
		ds.ErrorCount = 0
		ds.BackoffUntil = 0
		ds.TotalResponseTimeMs += report.ResponseTimeMs
		ds.BytesDownloaded += report.ContentSize
		h.run.Stats.URLsFetched++
		h.run.Stats.BytesDownloaded += report.ContentSize
		n := h.run.Stats.URLsFetched
		h.run.Stats.AvgResponseTimeMs += (float64(report.ResponseTimeMs) - h.run.Stats.AvgResponseTimeMs) / float64(n)
	}

	admitted := 0
	rejected := map[string]int{}
	if !failed && cfg.Behavior.FollowLinks {
		newDepth := report.Depth + 1
		for _, raw := range report.DiscoveredURLs {
			if cfg.Behavior.SameDomainOnly {
				candidate, cerr := NormalizeURL(raw)
				if cerr != nil {
					rejected[rejectInvalidURL]++
					continue
				}
				if DomainOf(candidate) != domain {
					rejected[rejectCrossDomain]++
					continue
				}
			}
			if reason := h.admit(raw, newDepth, -newDepth, now); reason != "" {
				rejected[reason]++
				continue
			}
			admitted++
		}
		h.run.Stats.URLsQueued += int64(admitted)
	}

	c.recomputeProgress(h, now)
	h.run.LastActivityAt = now
	if c.pageCapReached(h) {
		h.run.Complete(now)
	}

	if err := c.persist(ctx, runID, h); err != nil {
		return err
	}

	metrics.ObserveResult(runID, failed)
	metrics.ObserveBytes(runID, report.ContentSize)
	metrics.ObserveAdmission(runID, admitted, rejected)
	if h.run.Status == RunStatusCompleted {
		c.publishRunEvent(ctx, runID, string(h.run.Status), now)
	}

	c.recordPage(ctx, runID, normalized, domain, report, now)
	return nil
}

func errorMessage(report ResultReport) string {
	if report.Error != "" {
		return report.Error
	}
	return fmt.Sprintf("http status %d", report.Status)
}

func (c *Coordinator) recomputeProgress(h *runHandle, now int64) {
	stats := &h.run.Stats
	done := stats.URLsFetched + stats.URLsFailed
	queued := stats.URLsQueued
	if queued < 1 {
		queued = 1
	}
	pct := int(float64(done)/float64(queued)*100 + 0.5)
	if pct > 100 {
		pct = 100
	}
	h.run.Progress.Percentage = pct

	if h.run.StartedAt > 0 && now > h.run.StartedAt {
		minutes := float64(now-h.run.StartedAt) / 60_000
		if minutes > 0 {
			stats.PagesPerMinute = float64(stats.URLsFetched) / minutes
		}
	}
	if stats.PagesPerMinute > 0 {
		remaining := float64(h.frontier.Size()) / stats.PagesPerMinute * 60
		h.run.Progress.EstimatedSecondsRemaining = int64(remaining + 0.5)
	} else {
		h.run.Progress.EstimatedSecondsRemaining = -1
	}
}

// recordPage upserts page metadata and publishes a page event after the
// snapshot barrier. Failures are logged, never surfaced to the worker.
func (c *Coordinator) recordPage(ctx context.Context, runID, normalized, domain string, report ResultReport, now int64) {
	fetchedAt := report.FetchedAt
	if fetchedAt == 0 {
		fetchedAt = now
	}
	page := PageRecord{
		RunID:          runID,
		URL:            normalized,
		Domain:         domain,
		Status:         report.Status,
		ContentHash:    report.ContentHash,
		ContentSize:    report.ContentSize,
		ResponseTimeMs: report.ResponseTimeMs,
		FetchedAt:      fetchedAt,
		Error:          report.Error,
	}
	if c.pages != nil {
		if err := c.pages.Upsert(ctx, page); err != nil {
			c.logger.Warn("page upsert failed", zap.String("run", runID), zap.String("url", normalized), zap.Error(err))
		}
	}
	if c.publisher != nil {
		if _, err := c.publisher.Publish(ctx, TopicPageEvents, page); err != nil {
			c.logger.Warn("page event publish failed", zap.String("run", runID), zap.Error(err))
		}
	}
}

type runEvent struct {
	RunID     string `json:"runId"`
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
}

func (c *Coordinator) publishRunEvent(ctx context.Context, runID, event string, now int64) {
	if c.publisher == nil {
		return
	}
	if _, err := c.publisher.Publish(ctx, TopicRunEvents, runEvent{RunID: runID, Event: event, Timestamp: now}); err != nil {
		c.logger.Warn("run event publish failed", zap.String("run", runID), zap.String("event", event), zap.Error(err))
	}
}

// MaintenanceReport summarizes one maintenance sweep over a run.
type MaintenanceReport struct {
	RunID           string `json:"runId"`
	ClearedBackoffs int    `json:"clearedBackoffs"`
	EvictedDomains  int    `json:"evictedDomains"`
	Stalled         bool   `json:"stalled"`
}

// Maintain clears elapsed backoffs, evicts domain entries idle for over an
// hour with nothing left queued for them, and flags runs with no activity
// for thirty minutes while running.
func (c *Coordinator) Maintain(ctx context.Context, runID string) (MaintenanceReport, error) {
	h, err := c.acquire(ctx, runID)
	if err != nil {
		return MaintenanceReport{}, err
	}
	defer h.mu.Unlock()

	now := c.nowMs()
	report := MaintenanceReport{RunID: runID}

	queuedDomains := make(map[string]struct{})
	for _, item := range h.frontier.Export() {
		queuedDomains[item.Domain] = struct{}{}
	}

	changed := false
	for domain, ds := range h.domains {
		if ds.BackoffUntil > 0 && ds.BackoffUntil <= now {
			ds.BackoffUntil = 0
			report.ClearedBackoffs++
			changed = true
		}
		if _, queued := queuedDomains[domain]; queued {
			continue
		}
		if ds.LastFetchAt > 0 && now-ds.LastFetchAt > domainIdleEvictionMs {
			delete(h.domains, domain)
			report.EvictedDomains++
			changed = true
		}
	}

	if h.run.Status == RunStatusRunning && h.run.LastActivityAt > 0 && now-h.run.LastActivityAt > stalledRunMs {
		report.Stalled = true
		c.logger.Warn("run appears stalled",
			zap.String("run", runID),
			zap.Int64("idleMs", now-h.run.LastActivityAt),
			zap.Int("queueSize", h.frontier.Size()))
	}

	if changed {
		if err := c.persist(ctx, runID, h); err != nil {
			return MaintenanceReport{}, err
		}
	}
	return report, nil
}

// Stats builds the operator stats projection with a per-domain breakdown
// limited to the fifty busiest domains.
func (c *Coordinator) Stats(ctx context.Context, runID string) (StatsView, error) {
	h, err := c.acquire(ctx, runID)
	if err != nil {
		return StatsView{}, err
	}
	defer h.mu.Unlock()

	breakdown := make([]DomainBreakdown, 0, len(h.domains))
	for domain, ds := range h.domains {
		breakdown = append(breakdown, DomainBreakdown{Domain: domain, DomainState: *ds})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].RequestCount != breakdown[j].RequestCount {
			return breakdown[i].RequestCount > breakdown[j].RequestCount
		}
		return breakdown[i].Domain < breakdown[j].Domain
	})
	if len(breakdown) > 50 {
		breakdown = breakdown[:50]
	}

	return StatsView{
		Run: RunSummary{
			ID:          h.run.ID,
			Status:      h.run.Status,
			StartedAt:   h.run.StartedAt,
			CompletedAt: h.run.CompletedAt,
		},
		Stats:           h.run.Stats,
		Progress:        h.run.Progress,
		DomainBreakdown: breakdown,
	}, nil
}

// Status builds the lightweight status projection.
func (c *Coordinator) Status(ctx context.Context, runID string) (StatusView, error) {
	h, err := c.acquire(ctx, runID)
	if err != nil {
		return StatusView{}, err
	}
	defer h.mu.Unlock()

	view := StatusView{
		Status:         h.run.Status,
		QueueSize:      h.frontier.Size(),
		VisitedCount:   h.visited.Len(),
		DomainsTracked: len(h.domains),
	}
	if h.run.ConfigID != "" {
		view.Config = &ConfigRef{ID: h.run.ConfigID, Name: h.run.ConfigName}
	}
	return view, nil
}

// RecentErrors returns a copy of the recent-errors ring, newest last.
func (c *Coordinator) RecentErrors(ctx context.Context, runID string) ([]CrawlError, error) {
	h, err := c.acquire(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer h.mu.Unlock()
	return append([]CrawlError(nil), h.recentErrors...), nil
}

// Pages lists the page-metadata rows recorded for a run.
func (c *Coordinator) Pages(ctx context.Context, runID string) ([]PageRecord, error) {
	if c.pages == nil {
		return nil, nil
	}
	pages, err := c.pages.List(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list pages for run %s: %w", runID, err)
	}
	return pages, nil
}
