package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSnapshots struct {
	mu       sync.Mutex
	snaps    map[string]Snapshot
	saves    int
	failSave error
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{snaps: make(map[string]Snapshot)}
}

func (s *fakeSnapshots) Load(_ context.Context, runID string) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[runID]
	return snap, ok, nil
}

func (s *fakeSnapshots) Save(_ context.Context, runID string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.snaps[runID] = snap
	s.saves++
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	ms int64
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.ms)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms += d.Milliseconds()
}

type fakePages struct {
	mu      sync.Mutex
	records []PageRecord
}

func (p *fakePages) Upsert(_ context.Context, page PageRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.records {
		if existing.RunID == page.RunID && existing.URL == page.URL {
			p.records[i] = page
			return nil
		}
	}
	p.records = append(p.records, page)
	return nil
}

func (p *fakePages) List(_ context.Context, runID string) ([]PageRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PageRecord
	for _, page := range p.records {
		if page.RunID == runID {
			out = append(out, page)
		}
	}
	return out, nil
}

type publishedMsg struct {
	topic   string
	payload any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []publishedMsg
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, publishedMsg{topic: topic, payload: payload})
	return fmt.Sprintf("msg-%d", len(p.msgs)), nil
}

func (p *fakePublisher) byTopic(topic string) []publishedMsg {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedMsg
	for _, m := range p.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("cfg-%d", g.n), nil
}

type testEnv struct {
	coord *Coordinator
	snaps *fakeSnapshots
	clock *fakeClock
	pages *fakePages
	pub   *fakePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		snaps: newFakeSnapshots(),
		clock: &fakeClock{ms: 1_700_000_000_000},
		pages: &fakePages{},
		pub:   &fakePublisher{},
	}
	env.coord = New(env.snaps, env.pages, env.pub, env.clock, &seqIDs{}, zap.NewNop())
	env.coord.jitter = func() float64 { return 0.5 }
	return env
}

func (e *testEnv) configure(t *testing.T, runID string, patch ConfigPatch) {
	t.Helper()
	_, err := e.coord.Configure(context.Background(), runID, patch, "")
	require.NoError(t, err)
}

func (e *testEnv) seed(t *testing.T, runID string, urls ...string) SeedResult {
	t.Helper()
	res, err := e.coord.Seed(context.Background(), runID, urls, 0, 0)
	require.NoError(t, err)
	return res
}

func (e *testEnv) start(t *testing.T, runID string) {
	t.Helper()
	_, err := e.coord.Start(context.Background(), runID)
	require.NoError(t, err)
}

func (e *testEnv) work(t *testing.T, runID string, batchSize int) WorkBatch {
	t.Helper()
	batch, err := e.coord.RequestWork(context.Background(), runID, batchSize, "worker-1")
	require.NoError(t, err)
	return batch
}

func (e *testEnv) report(t *testing.T, runID string, report ResultReport) {
	t.Helper()
	require.NoError(t, e.coord.ReportResult(context.Background(), runID, report))
}

func TestSeedAdmitsAndDeduplicates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	res := env.seed(t, "run",
		"https://example.org/a",
		"https://example.org/a/",
		"https://EXAMPLE.org/a",
		"ftp://example.org/file",
		"https://example.org/b",
	)
	require.Equal(t, 2, res.Admitted)
	require.Equal(t, 3, res.Rejected)
	require.Equal(t, 2, res.QueueSize)
}

func TestSeedValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.coord.Seed(ctx, "run", nil, 0, 0)
	require.Equal(t, CodeInvalidRequest, AsError(err).Code)

	// Negative depth is clamped to zero.
	res, err := env.coord.Seed(ctx, "run", []string{"https://example.org/a"}, -5, 0)
	require.NoError(t, err)
	require.Equal(t, 1, res.Admitted)

	_, err = env.coord.Cancel(ctx, "run")
	require.NoError(t, err)
	_, err = env.coord.Seed(ctx, "run", []string{"https://example.org/b"}, 0, 0)
	require.Equal(t, CodeRunCompleted, AsError(err).Code)
}

func TestSeedQueueFull(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.configure(t, "run", ConfigPatch{Behavior: &CrawlBehaviorPatch{MaxQueueSize: intPtr(2)}})

	res := env.seed(t, "run", "https://a.org/1", "https://a.org/2", "https://a.org/3")
	require.Equal(t, 2, res.Admitted)
	require.Equal(t, 1, res.Rejected)
}

func TestSeedRespectsScope(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.configure(t, "run", ConfigPatch{Scope: &DomainScopePatch{
		AllowedDomains:  stringsPtr([]string{"example.org"}),
		ExcludePatterns: stringsPtr([]string{`\.pdf$`}),
	}})

	res := env.seed(t, "run",
		"https://example.org/page",
		"https://other.org/page",
		"https://example.org/report.pdf",
	)
	require.Equal(t, 1, res.Admitted)
	require.Equal(t, 2, res.Rejected)
}

func TestSeedRespectsMaxDepth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.configure(t, "run", ConfigPatch{Behavior: &CrawlBehaviorPatch{MaxDepth: intPtr(1)}})

	res, err := env.coord.Seed(context.Background(), "run", []string{"https://example.org/deep"}, 2, 0)
	require.NoError(t, err)
	require.Zero(t, res.Admitted)
	require.Equal(t, 1, res.Rejected)
}

func TestLifecycleFlowAndEvents(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	run, err := env.coord.Start(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, RunStatusRunning, run.Status)

	run, err = env.coord.Pause(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, RunStatusPaused, run.Status)

	run, err = env.coord.Resume(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, RunStatusRunning, run.Status)

	run, err = env.coord.Cancel(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, RunStatusCancelled, run.Status)

	_, err = env.coord.Start(ctx, "run")
	require.Equal(t, CodeRunCompleted, AsError(err).Code)

	events := env.pub.byTopic(TopicRunEvents)
	require.Len(t, events, 4)
}

func TestRequestWorkEmptyWhenNotRunning(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://example.org/a")

	batch := env.work(t, "run", 10)
	require.Empty(t, batch.URLs)
	require.Equal(t, 1, batch.QueueSize)
	require.NotEmpty(t, batch.Config.UserAgent, "config rides along even on empty batches")
}

func TestRequestWorkOneURLPerDomainPerBatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1", "https://a.org/2", "https://b.org/1")
	env.start(t, "run")

	batch := env.work(t, "run", 10)
	require.Len(t, batch.URLs, 2)
	domains := map[string]bool{}
	for _, item := range batch.URLs {
		domains[DomainOf(item.URL)] = true
	}
	require.True(t, domains["a.org"])
	require.True(t, domains["b.org"])
	require.Equal(t, 1, batch.QueueSize)
}

func TestRequestWorkHonorsMinDomainDelay(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1", "https://a.org/2")
	env.start(t, "run")

	first := env.work(t, "run", 10)
	require.Len(t, first.URLs, 1)

	// Too soon for a.org again.
	second := env.work(t, "run", 10)
	require.Empty(t, second.URLs)

	env.clock.Advance(1001 * time.Millisecond)
	third := env.work(t, "run", 10)
	require.Len(t, third.URLs, 1)
	require.Equal(t, "https://a.org/2", third.URLs[0].URL)
}

func TestRequestWorkMarksVisitedAtDispatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1")
	env.start(t, "run")
	env.work(t, "run", 10)

	res := env.seed(t, "run", "https://a.org/1")
	require.Zero(t, res.Admitted)
	require.Equal(t, 1, res.Rejected)

	view, err := env.coord.Status(context.Background(), "run")
	require.NoError(t, err)
	require.Equal(t, 1, view.VisitedCount)
}

func TestRequestWorkSkipsBackedOffDomain(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1", "https://a.org/2")
	env.start(t, "run")

	batch := env.work(t, "run", 10)
	require.Len(t, batch.URLs, 1)

	// First failure backs the domain off for minDelay * multiplier = 2s.
	env.report(t, "run", ResultReport{URL: "https://a.org/1", Error: "connection refused"})

	env.clock.Advance(1500 * time.Millisecond)
	blocked := env.work(t, "run", 10)
	require.Empty(t, blocked.URLs)

	env.clock.Advance(600 * time.Millisecond)
	allowed := env.work(t, "run", 10)
	require.Len(t, allowed.URLs, 1)
}

func TestRequestWorkGlobalRateLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.configure(t, "run", ConfigPatch{RateLimit: &RateLimitPatch{GlobalRateLimitPerMinute: intPtr(1)}})
	env.seed(t, "run", "https://a.org/1", "https://b.org/1")
	env.start(t, "run")

	first := env.work(t, "run", 10)
	require.Len(t, first.URLs, 1)

	second := env.work(t, "run", 10)
	require.Empty(t, second.URLs, "window holds one dispatch for the next minute")

	env.clock.Advance(61 * time.Second)
	third := env.work(t, "run", 10)
	require.Len(t, third.URLs, 1)
}

func TestRequestWorkDefaultBatchSize(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.configure(t, "run", ConfigPatch{Behavior: &CrawlBehaviorPatch{DefaultBatchSize: intPtr(1)}})
	env.seed(t, "run", "https://a.org/1", "https://b.org/1")
	env.start(t, "run")

	batch := env.work(t, "run", 0)
	require.Len(t, batch.URLs, 1)
}

func TestRunAutoCompletesWhenFrontierDrains(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1")
	env.start(t, "run")

	batch := env.work(t, "run", 10)
	require.Len(t, batch.URLs, 1)
	env.report(t, "run", ResultReport{URL: "https://a.org/1", Status: 200})

	empty := env.work(t, "run", 10)
	require.Empty(t, empty.URLs)

	view, err := env.coord.Status(context.Background(), "run")
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, view.Status)
}

func TestEmptyQueueDispatchCompletesFreshRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.start(t, "run")

	batch := env.work(t, "run", 5)
	require.Empty(t, batch.URLs)
	require.Equal(t, 0, batch.QueueSize)

	view, err := env.coord.Status(context.Background(), "run")
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, view.Status)
}

func TestMaxPagesPerRunCompletesRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.configure(t, "run", ConfigPatch{Behavior: &CrawlBehaviorPatch{MaxPagesPerRun: int64Ptr(1)}})
	env.seed(t, "run", "https://a.org/1", "https://b.org/1")
	env.start(t, "run")

	batch := env.work(t, "run", 10)
	require.Len(t, batch.URLs, 2)

	env.report(t, "run", ResultReport{URL: batch.URLs[0].URL, Status: 200})

	view, err := env.coord.Status(context.Background(), "run")
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, view.Status)

	err = env.coord.ReportResult(context.Background(), "run", ResultReport{URL: batch.URLs[1].URL, Status: 200})
	require.Equal(t, CodeRunCompleted, AsError(err).Code)
}

func TestReportResultStatsAndProgress(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1", "https://a.org/2")
	env.start(t, "run")
	env.work(t, "run", 10)

	env.report(t, "run", ResultReport{
		URL:            "https://a.org/1",
		Status:         200,
		ResponseTimeMs: 100,
		ContentSize:    2048,
	})

	stats, err := env.coord.Stats(context.Background(), "run")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Stats.URLsFetched)
	require.Equal(t, int64(2048), stats.Stats.BytesDownloaded)
	require.Equal(t, float64(100), stats.Stats.AvgResponseTimeMs)
	require.Equal(t, 50, stats.Progress.Percentage)
}

func TestReportResultRejectsWhenNotStarted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1")

	err := env.coord.ReportResult(context.Background(), "run", ResultReport{URL: "https://a.org/1", Status: 200})
	require.Equal(t, CodeRunNotRunning, AsError(err).Code)

	err = env.coord.ReportResult(context.Background(), "run", ResultReport{})
	require.Equal(t, CodeInvalidRequest, AsError(err).Code)
}

func TestReportResultAcceptedWhilePaused(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1")
	env.start(t, "run")
	env.work(t, "run", 10)

	_, err := env.coord.Pause(context.Background(), "run")
	require.NoError(t, err)

	env.report(t, "run", ResultReport{URL: "https://a.org/1", Status: 200})
}

func TestReportResultDiscoversLinksAtNextDepth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1")
	env.start(t, "run")
	env.work(t, "run", 10)

	env.report(t, "run", ResultReport{
		URL:    "https://a.org/1",
		Depth:  0,
		Status: 200,
		DiscoveredURLs: []string{
			"https://a.org/child",
			"https://other.org/cross",
			"https://a.org/1",
		},
	})

	env.clock.Advance(1001 * time.Millisecond)
	batch := env.work(t, "run", 10)
	require.Len(t, batch.URLs, 1, "cross-domain and already-visited links are dropped")
	require.Equal(t, "https://a.org/child", batch.URLs[0].URL)
	require.Equal(t, 1, batch.URLs[0].Depth)
	require.Equal(t, -1, batch.URLs[0].Priority, "deeper pages dispatch after shallower ones")
}

func TestReportResultDiscoveryStopsAtMaxDepth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.configure(t, "run", ConfigPatch{Behavior: &CrawlBehaviorPatch{MaxDepth: intPtr(0)}})
	env.seed(t, "run", "https://a.org/1")
	env.start(t, "run")
	env.work(t, "run", 10)

	env.report(t, "run", ResultReport{
		URL:            "https://a.org/1",
		Status:         200,
		DiscoveredURLs: []string{"https://a.org/child"},
	})

	view, err := env.coord.Status(context.Background(), "run")
	require.NoError(t, err)
	require.Zero(t, view.QueueSize)
}

func TestReportResultDiscoveryDisabled(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.configure(t, "run", ConfigPatch{Behavior: &CrawlBehaviorPatch{FollowLinks: boolPtr(false)}})
	env.seed(t, "run", "https://a.org/1")
	env.start(t, "run")
	env.work(t, "run", 10)

	env.report(t, "run", ResultReport{
		URL:            "https://a.org/1",
		Status:         200,
		DiscoveredURLs: []string{"https://a.org/child"},
	})

	view, err := env.coord.Status(context.Background(), "run")
	require.NoError(t, err)
	require.Zero(t, view.QueueSize)
}

func TestReportResultCrossDomainAllowedWhenConfigured(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.configure(t, "run", ConfigPatch{Behavior: &CrawlBehaviorPatch{SameDomainOnly: boolPtr(false)}})
	env.seed(t, "run", "https://a.org/1")
	env.start(t, "run")
	env.work(t, "run", 10)

	env.report(t, "run", ResultReport{
		URL:            "https://a.org/1",
		Status:         200,
		DiscoveredURLs: []string{"https://other.org/cross"},
	})

	view, err := env.coord.Status(context.Background(), "run")
	require.NoError(t, err)
	require.Equal(t, 1, view.QueueSize)
}

func TestReportResultRecordsRecentErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1")
	env.start(t, "run")
	env.work(t, "run", 10)

	env.report(t, "run", ResultReport{URL: "https://a.org/1", Status: 503})

	errs, err := env.coord.RecentErrors(context.Background(), "run")
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.Equal(t, "https://a.org/1", errs[0].URL)
	require.Equal(t, "a.org", errs[0].Domain)
	require.Equal(t, 503, errs[0].StatusCode)
	require.Equal(t, "http status 503", errs[0].Message)
	require.NotZero(t, errs[0].Timestamp)
}

func TestRecentErrorsRingIsCapped(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.start(t, "run")

	for i := 0; i < MaxRecentErrors+5; i++ {
		env.report(t, "run", ResultReport{
			URL:   fmt.Sprintf("https://a.org/%d", i),
			Error: "timeout",
		})
	}

	errs, err := env.coord.RecentErrors(context.Background(), "run")
	require.NoError(t, err)
	require.Len(t, errs, MaxRecentErrors)
	require.Equal(t, "https://a.org/5", errs[0].URL, "oldest entries fall off")
	require.Equal(t, fmt.Sprintf("https://a.org/%d", MaxRecentErrors+4), errs[len(errs)-1].URL)
}

func TestReportResultRecordsPageAndPublishes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1")
	env.start(t, "run")
	env.work(t, "run", 10)

	env.report(t, "run", ResultReport{
		URL:         "https://A.org/1",
		Status:      200,
		ContentHash: "abc123",
		ContentSize: 512,
	})

	pages, err := env.coord.Pages(context.Background(), "run")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, "https://a.org/1", pages[0].URL, "stored under the normalized form")
	require.Equal(t, "abc123", pages[0].ContentHash)
	require.NotZero(t, pages[0].FetchedAt)

	require.Len(t, env.pub.byTopic(TopicPageEvents), 1)
}

func TestResetClearsStateKeepsConfig(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.configure(t, "run", ConfigPatch{Behavior: &CrawlBehaviorPatch{MaxDepth: intPtr(3)}})
	env.seed(t, "run", "https://a.org/1", "https://b.org/1")
	env.start(t, "run")
	env.work(t, "run", 10)

	run, err := env.coord.Reset(context.Background(), "run")
	require.NoError(t, err)
	require.Equal(t, RunStatusPending, run.Status)

	view, err := env.coord.Status(context.Background(), "run")
	require.NoError(t, err)
	require.Zero(t, view.QueueSize)
	require.Zero(t, view.VisitedCount)
	require.Zero(t, view.DomainsTracked)

	cfg, _, err := env.coord.Config(context.Background(), "run")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Behavior.MaxDepth)

	// A previously dispatched URL becomes crawlable again.
	res := env.seed(t, "run", "https://a.org/1")
	require.Equal(t, 1, res.Admitted)
}

func TestStateSurvivesRestart(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1", "https://a.org/2", "https://b.org/1")
	env.start(t, "run")
	batch := env.work(t, "run", 10)
	require.Len(t, batch.URLs, 2)

	// A fresh coordinator sharing the snapshot store sees the same state.
	restarted := New(env.snaps, env.pages, env.pub, env.clock, &seqIDs{}, zap.NewNop())
	restarted.jitter = func() float64 { return 0.5 }

	view, err := restarted.Status(context.Background(), "run")
	require.NoError(t, err)
	require.Equal(t, RunStatusRunning, view.Status)
	require.Equal(t, 1, view.QueueSize)
	require.Equal(t, 2, view.VisitedCount)
	require.Equal(t, 2, view.DomainsTracked)

	// Domain delays restore too: a.org was just fetched.
	blocked, err := restarted.RequestWork(context.Background(), "run", 10, "worker-2")
	require.NoError(t, err)
	require.Empty(t, blocked.URLs)

	env.clock.Advance(1001 * time.Millisecond)
	allowed, err := restarted.RequestWork(context.Background(), "run", 10, "worker-2")
	require.NoError(t, err)
	require.Len(t, allowed.URLs, 1)
}

func TestMaintainClearsExpiredBackoffs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1", "https://a.org/2")
	env.start(t, "run")
	env.work(t, "run", 10)
	env.report(t, "run", ResultReport{URL: "https://a.org/1", Error: "boom"})

	report, err := env.coord.Maintain(context.Background(), "run")
	require.NoError(t, err)
	require.Zero(t, report.ClearedBackoffs, "backoff still in the future")

	env.clock.Advance(3 * time.Second)
	report, err = env.coord.Maintain(context.Background(), "run")
	require.NoError(t, err)
	require.Equal(t, 1, report.ClearedBackoffs)
}

func TestMaintainEvictsIdleDomains(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1")
	env.start(t, "run")
	env.work(t, "run", 10)
	env.report(t, "run", ResultReport{URL: "https://a.org/1", Status: 200})

	env.clock.Advance(61 * time.Minute)
	report, err := env.coord.Maintain(context.Background(), "run")
	require.NoError(t, err)
	require.Equal(t, 1, report.EvictedDomains)

	view, err := env.coord.Status(context.Background(), "run")
	require.NoError(t, err)
	require.Zero(t, view.DomainsTracked)
}

func TestMaintainKeepsDomainsWithQueuedURLs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1", "https://a.org/2")
	env.start(t, "run")
	env.work(t, "run", 10)

	env.clock.Advance(61 * time.Minute)
	report, err := env.coord.Maintain(context.Background(), "run")
	require.NoError(t, err)
	require.Zero(t, report.EvictedDomains, "a.org still has a queued URL")
}

func TestMaintainFlagsStalledRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1")
	env.start(t, "run")

	env.clock.Advance(31 * time.Minute)
	report, err := env.coord.Maintain(context.Background(), "run")
	require.NoError(t, err)
	require.True(t, report.Stalled)

	_, err = env.coord.Pause(context.Background(), "run")
	require.NoError(t, err)
	report, err = env.coord.Maintain(context.Background(), "run")
	require.NoError(t, err)
	require.False(t, report.Stalled, "paused runs are not stalled")
}

func TestStatsDomainBreakdownSorted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "run", "https://a.org/1", "https://a.org/2", "https://b.org/1")
	env.start(t, "run")
	env.work(t, "run", 10)
	env.clock.Advance(1001 * time.Millisecond)
	env.work(t, "run", 10)

	stats, err := env.coord.Stats(context.Background(), "run")
	require.NoError(t, err)
	require.Len(t, stats.DomainBreakdown, 2)
	require.Equal(t, "a.org", stats.DomainBreakdown[0].Domain)
	require.Equal(t, int64(2), stats.DomainBreakdown[0].RequestCount)
	require.Equal(t, "b.org", stats.DomainBreakdown[1].Domain)
}

func TestConfigureAssignsIDsAndKeepsName(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	ref, err := env.coord.Configure(ctx, "run", ConfigPatch{}, "politeness-v1")
	require.NoError(t, err)
	require.Equal(t, "cfg-1", ref.ID)
	require.Equal(t, "politeness-v1", ref.Name)

	ref, err = env.coord.Configure(ctx, "run", ConfigPatch{}, "")
	require.NoError(t, err)
	require.Equal(t, "cfg-2", ref.ID)
	require.Equal(t, "politeness-v1", ref.Name, "empty name keeps the prior one")

	_, err = env.coord.Configure(ctx, "run", ConfigPatch{
		Behavior: &CrawlBehaviorPatch{MaxQueueSize: intPtr(0)},
	}, "")
	require.Equal(t, CodeInvalidRequest, AsError(err).Code)
}

func TestPersistFailureSurfacesError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.snaps.failSave = errors.New("disk full")

	_, err := env.coord.Seed(context.Background(), "run", []string{"https://a.org/1"}, 0, 0)
	require.Error(t, err)
	require.Equal(t, CodeInternal, AsError(err).Code)
}

func TestRunIDsSorted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "zeta", "https://a.org/1")
	env.seed(t, "alpha", "https://a.org/1")
	env.seed(t, "mid", "https://a.org/1")

	require.Equal(t, []string{"alpha", "mid", "zeta"}, env.coord.RunIDs())
}
