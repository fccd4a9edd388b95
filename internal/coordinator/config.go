package coordinator

import (
	"regexp"
	"strings"
)

// CrawlConfig is the per-run crawl policy. It has five sections; updates
// are shallow-merged within each section via ConfigPatch.
type CrawlConfig struct {
	RateLimit     RateLimitConfig     `json:"rateLimiting"`
	ContentFilter ContentFilterConfig `json:"contentFiltering"`
	Behavior      CrawlBehaviorConfig `json:"crawlBehavior"`
	Scope         DomainScopeConfig   `json:"domainScope"`
	Rendering     RenderingConfig     `json:"rendering"`
}

// RateLimitConfig paces per-domain and global dispatch.
type RateLimitConfig struct {
	MinDomainDelayMs         int64   `json:"minDomainDelayMs"`
	MaxDomainDelayMs         int64   `json:"maxDomainDelayMs"`
	ErrorBackoffMultiplier   float64 `json:"errorBackoffMultiplier"`
	JitterFactor             float64 `json:"jitterFactor"`
	MaxConcurrentRequests    int     `json:"maxConcurrentRequests"`
	GlobalRateLimitPerMinute int     `json:"globalRateLimitPerMinute"`
}

// ContentFilterConfig constrains what workers download and store.
type ContentFilterConfig struct {
	MaxContentSizeBytes int64    `json:"maxContentSizeBytes"`
	AllowedContentTypes []string `json:"allowedContentTypes"`
	SkipBinaryFiles     bool     `json:"skipBinaryFiles"`
	StoreContent        bool     `json:"storeContent"`
}

// CrawlBehaviorConfig governs frontier limits and worker fetch behavior.
type CrawlBehaviorConfig struct {
	MaxDepth         int               `json:"maxDepth"`
	MaxQueueSize     int               `json:"maxQueueSize"`
	MaxPagesPerRun   int64             `json:"maxPagesPerRun"`
	DefaultBatchSize int               `json:"defaultBatchSize"`
	RequestTimeoutMs int64             `json:"requestTimeoutMs"`
	RetryCount       int               `json:"retryCount"`
	RespectRobotsTxt bool              `json:"respectRobotsTxt"`
	FollowRedirects  bool              `json:"followRedirects"`
	MaxRedirects     int               `json:"maxRedirects"`
	UserAgent        string            `json:"userAgent"`
	CustomHeaders    map[string]string `json:"customHeaders,omitempty"`
	FollowLinks      bool              `json:"followLinks"`
	SameDomainOnly   bool              `json:"sameDomainOnly"`
}

// DomainScopeConfig restricts which URLs the frontier admits.
type DomainScopeConfig struct {
	AllowedDomains    []string `json:"allowedDomains"`
	BlockedDomains    []string `json:"blockedDomains"`
	IncludePatterns   []string `json:"includePatterns"`
	ExcludePatterns   []string `json:"excludePatterns"`
	IncludeSubdomains bool     `json:"includeSubdomains"`
}

// RenderingConfig is forwarded to workers that support JS rendering.
// The coordinator itself never renders.
type RenderingConfig struct {
	Enabled         bool   `json:"enabled"`
	WaitForSelector string `json:"waitForSelector,omitempty"`
	TimeoutMs       int64  `json:"timeoutMs,omitempty"`
}

// WorkerConfig is the flattened policy subset a worker needs to execute a
// batch. Attached to every request-work response.
type WorkerConfig struct {
	RequestTimeoutMs    int64             `json:"requestTimeoutMs"`
	RespectRobotsTxt    bool              `json:"respectRobotsTxt"`
	UserAgent           string            `json:"userAgent"`
	CustomHeaders       map[string]string `json:"customHeaders"`
	MaxContentSizeBytes int64             `json:"maxContentSizeBytes"`
	AllowedContentTypes []string          `json:"allowedContentTypes"`
	FollowRedirects     bool              `json:"followRedirects"`
	MaxRedirects        int               `json:"maxRedirects"`
	StoreContent        bool              `json:"storeContent"`
}

// DefaultConfig returns the documented default crawl configuration.
func DefaultConfig() CrawlConfig {
	return CrawlConfig{
		RateLimit: RateLimitConfig{
			MinDomainDelayMs:         1000,
			MaxDomainDelayMs:         60000,
			ErrorBackoffMultiplier:   2,
			JitterFactor:             0.1,
			MaxConcurrentRequests:    16,
			GlobalRateLimitPerMinute: 0,
		},
		ContentFilter: ContentFilterConfig{
			MaxContentSizeBytes: 10 << 20,
			AllowedContentTypes: []string{"text/html", "application/xhtml+xml"},
			SkipBinaryFiles:     true,
			StoreContent:        true,
		},
		Behavior: CrawlBehaviorConfig{
			MaxDepth:         10,
			MaxQueueSize:     100000,
			MaxPagesPerRun:   0,
			DefaultBatchSize: 10,
			RequestTimeoutMs: 30000,
			RetryCount:       3,
			RespectRobotsTxt: true,
			FollowRedirects:  true,
			MaxRedirects:     5,
			UserAgent:        "CloudflareCrawler/1.0",
			FollowLinks:      true,
			SameDomainOnly:   true,
		},
		Scope: DomainScopeConfig{
			IncludeSubdomains: true,
		},
		Rendering: RenderingConfig{},
	}
}

// WorkerView projects the config onto the subset workers need.
func (c CrawlConfig) WorkerView() WorkerConfig {
	headers := c.Behavior.CustomHeaders
	if headers == nil {
		headers = map[string]string{}
	}
	return WorkerConfig{
		RequestTimeoutMs:    c.Behavior.RequestTimeoutMs,
		RespectRobotsTxt:    c.Behavior.RespectRobotsTxt,
		UserAgent:           c.Behavior.UserAgent,
		CustomHeaders:       headers,
		MaxContentSizeBytes: c.ContentFilter.MaxContentSizeBytes,
		AllowedContentTypes: c.ContentFilter.AllowedContentTypes,
		FollowRedirects:     c.Behavior.FollowRedirects,
		MaxRedirects:        c.Behavior.MaxRedirects,
		StoreContent:        c.ContentFilter.StoreContent,
	}
}

// ConfigPatch is a partial configuration update. Nil fields keep their
// prior values; merging is shallow within each section.
type ConfigPatch struct {
	RateLimit     *RateLimitPatch     `json:"rateLimiting,omitempty"`
	ContentFilter *ContentFilterPatch `json:"contentFiltering,omitempty"`
	Behavior      *CrawlBehaviorPatch `json:"crawlBehavior,omitempty"`
	Scope         *DomainScopePatch   `json:"domainScope,omitempty"`
	Rendering     *RenderingPatch     `json:"rendering,omitempty"`
}

// RateLimitPatch updates the rate-limiting section.
type RateLimitPatch struct {
	MinDomainDelayMs         *int64   `json:"minDomainDelayMs,omitempty"`
	MaxDomainDelayMs         *int64   `json:"maxDomainDelayMs,omitempty"`
	ErrorBackoffMultiplier   *float64 `json:"errorBackoffMultiplier,omitempty"`
	JitterFactor             *float64 `json:"jitterFactor,omitempty"`
	MaxConcurrentRequests    *int     `json:"maxConcurrentRequests,omitempty"`
	GlobalRateLimitPerMinute *int     `json:"globalRateLimitPerMinute,omitempty"`
}

// ContentFilterPatch updates the content-filtering section.
type ContentFilterPatch struct {
	MaxContentSizeBytes *int64    `json:"maxContentSizeBytes,omitempty"`
	AllowedContentTypes *[]string `json:"allowedContentTypes,omitempty"`
	SkipBinaryFiles     *bool     `json:"skipBinaryFiles,omitempty"`
	StoreContent        *bool     `json:"storeContent,omitempty"`
}

// CrawlBehaviorPatch updates the crawl-behavior section.
type CrawlBehaviorPatch struct {
	MaxDepth         *int               `json:"maxDepth,omitempty"`
	MaxQueueSize     *int               `json:"maxQueueSize,omitempty"`
	MaxPagesPerRun   *int64             `json:"maxPagesPerRun,omitempty"`
	DefaultBatchSize *int               `json:"defaultBatchSize,omitempty"`
	RequestTimeoutMs *int64             `json:"requestTimeoutMs,omitempty"`
	RetryCount       *int               `json:"retryCount,omitempty"`
	RespectRobotsTxt *bool              `json:"respectRobotsTxt,omitempty"`
	FollowRedirects  *bool              `json:"followRedirects,omitempty"`
	MaxRedirects     *int               `json:"maxRedirects,omitempty"`
	UserAgent        *string            `json:"userAgent,omitempty"`
	CustomHeaders    *map[string]string `json:"customHeaders,omitempty"`
	FollowLinks      *bool              `json:"followLinks,omitempty"`
	SameDomainOnly   *bool              `json:"sameDomainOnly,omitempty"`
}

// DomainScopePatch updates the domain-scope section.
type DomainScopePatch struct {
	AllowedDomains    *[]string `json:"allowedDomains,omitempty"`
	BlockedDomains    *[]string `json:"blockedDomains,omitempty"`
	IncludePatterns   *[]string `json:"includePatterns,omitempty"`
	ExcludePatterns   *[]string `json:"excludePatterns,omitempty"`
	IncludeSubdomains *bool     `json:"includeSubdomains,omitempty"`
}

// RenderingPatch updates the rendering section.
type RenderingPatch struct {
	Enabled         *bool   `json:"enabled,omitempty"`
	WaitForSelector *string `json:"waitForSelector,omitempty"`
	TimeoutMs       *int64  `json:"timeoutMs,omitempty"`
}

// Apply merges the patch into cfg and returns the result.
func (p ConfigPatch) Apply(cfg CrawlConfig) CrawlConfig {
	if p.RateLimit != nil {
		rl := &cfg.RateLimit
		setInt64(&rl.MinDomainDelayMs, p.RateLimit.MinDomainDelayMs)
		setInt64(&rl.MaxDomainDelayMs, p.RateLimit.MaxDomainDelayMs)
		setFloat64(&rl.ErrorBackoffMultiplier, p.RateLimit.ErrorBackoffMultiplier)
		setFloat64(&rl.JitterFactor, p.RateLimit.JitterFactor)
		setInt(&rl.MaxConcurrentRequests, p.RateLimit.MaxConcurrentRequests)
		setInt(&rl.GlobalRateLimitPerMinute, p.RateLimit.GlobalRateLimitPerMinute)
	}
	if p.ContentFilter != nil {
		cf := &cfg.ContentFilter
		setInt64(&cf.MaxContentSizeBytes, p.ContentFilter.MaxContentSizeBytes)
		if p.ContentFilter.AllowedContentTypes != nil {
			cf.AllowedContentTypes = cloneStrings(*p.ContentFilter.AllowedContentTypes)
		}
		setBool(&cf.SkipBinaryFiles, p.ContentFilter.SkipBinaryFiles)
		setBool(&cf.StoreContent, p.ContentFilter.StoreContent)
	}
	if p.Behavior != nil {
		b := &cfg.Behavior
		setInt(&b.MaxDepth, p.Behavior.MaxDepth)
		setInt(&b.MaxQueueSize, p.Behavior.MaxQueueSize)
		setInt64(&b.MaxPagesPerRun, p.Behavior.MaxPagesPerRun)
		setInt(&b.DefaultBatchSize, p.Behavior.DefaultBatchSize)
		setInt64(&b.RequestTimeoutMs, p.Behavior.RequestTimeoutMs)
		setInt(&b.RetryCount, p.Behavior.RetryCount)
		setBool(&b.RespectRobotsTxt, p.Behavior.RespectRobotsTxt)
		setBool(&b.FollowRedirects, p.Behavior.FollowRedirects)
		setInt(&b.MaxRedirects, p.Behavior.MaxRedirects)
		setString(&b.UserAgent, p.Behavior.UserAgent)
		if p.Behavior.CustomHeaders != nil {
			b.CustomHeaders = cloneHeaders(*p.Behavior.CustomHeaders)
		}
		setBool(&b.FollowLinks, p.Behavior.FollowLinks)
		setBool(&b.SameDomainOnly, p.Behavior.SameDomainOnly)
	}
	if p.Scope != nil {
		sc := &cfg.Scope
		if p.Scope.AllowedDomains != nil {
			sc.AllowedDomains = cloneStrings(*p.Scope.AllowedDomains)
		}
		if p.Scope.BlockedDomains != nil {
			sc.BlockedDomains = cloneStrings(*p.Scope.BlockedDomains)
		}
		if p.Scope.IncludePatterns != nil {
			sc.IncludePatterns = cloneStrings(*p.Scope.IncludePatterns)
		}
		if p.Scope.ExcludePatterns != nil {
			sc.ExcludePatterns = cloneStrings(*p.Scope.ExcludePatterns)
		}
		setBool(&sc.IncludeSubdomains, p.Scope.IncludeSubdomains)
	}
	if p.Rendering != nil {
		rd := &cfg.Rendering
		setBool(&rd.Enabled, p.Rendering.Enabled)
		setString(&rd.WaitForSelector, p.Rendering.WaitForSelector)
		setInt64(&rd.TimeoutMs, p.Rendering.TimeoutMs)
	}
	return cfg
}

// Validate rejects patches that would produce an unusable configuration.
func (p ConfigPatch) Validate() error {
	if p.RateLimit != nil {
		if v := p.RateLimit.MinDomainDelayMs; v != nil && *v < 0 {
			return Errorf(CodeInvalidRequest, "minDomainDelayMs must be >= 0")
		}
		if v := p.RateLimit.ErrorBackoffMultiplier; v != nil && *v < 1 {
			return Errorf(CodeInvalidRequest, "errorBackoffMultiplier must be >= 1")
		}
		if v := p.RateLimit.JitterFactor; v != nil && (*v < 0 || *v >= 1) {
			return Errorf(CodeInvalidRequest, "jitterFactor must be in [0, 1)")
		}
	}
	if p.Behavior != nil {
		if v := p.Behavior.MaxQueueSize; v != nil && *v <= 0 {
			return Errorf(CodeInvalidRequest, "maxQueueSize must be > 0")
		}
		if v := p.Behavior.MaxDepth; v != nil && *v < 0 {
			return Errorf(CodeInvalidRequest, "maxDepth must be >= 0")
		}
	}
	if p.Scope != nil {
		for _, set := range []*[]string{p.Scope.IncludePatterns, p.Scope.ExcludePatterns} {
			if set == nil {
				continue
			}
			for _, expr := range *set {
				if _, err := regexp.Compile(expr); err != nil {
					return Errorf(CodeInvalidRequest, "invalid pattern %q: %v", expr, err)
				}
			}
		}
	}
	return nil
}

// scopeMatcher holds the compiled form of a DomainScopeConfig. Rebuilt on
// hydration and after each configure.
type scopeMatcher struct {
	scope   DomainScopeConfig
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

func newScopeMatcher(scope DomainScopeConfig) *scopeMatcher {
	m := &scopeMatcher{scope: scope}
	for _, expr := range scope.IncludePatterns {
		if re, err := regexp.Compile(expr); err == nil {
			m.include = append(m.include, re)
		}
	}
	for _, expr := range scope.ExcludePatterns {
		if re, err := regexp.Compile(expr); err == nil {
			m.exclude = append(m.exclude, re)
		}
	}
	return m
}

// AllowsDomain applies blocked/allowed lists, honoring includeSubdomains.
func (m *scopeMatcher) AllowsDomain(domain string) (string, bool) {
	for _, blocked := range m.scope.BlockedDomains {
		if domainMatches(domain, blocked, m.scope.IncludeSubdomains) {
			return "domain blocked", false
		}
	}
	if len(m.scope.AllowedDomains) == 0 {
		return "", true
	}
	for _, allowed := range m.scope.AllowedDomains {
		if domainMatches(domain, allowed, m.scope.IncludeSubdomains) {
			return "", true
		}
	}
	return "domain not allowed", false
}

// AllowsURL applies include/exclude regex patterns to the normalized URL.
func (m *scopeMatcher) AllowsURL(u string) (string, bool) {
	for _, re := range m.exclude {
		if re.MatchString(u) {
			return "url excluded by pattern", false
		}
	}
	if len(m.include) == 0 {
		return "", true
	}
	for _, re := range m.include {
		if re.MatchString(u) {
			return "", true
		}
	}
	return "url not matched by include patterns", false
}

func domainMatches(domain, candidate string, includeSubdomains bool) bool {
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	if candidate == "" {
		return false
	}
	if domain == candidate {
		return true
	}
	return includeSubdomains && strings.HasSuffix(domain, "."+candidate)
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setInt64(dst *int64, src *int64) {
	if src != nil {
		*dst = *src
	}
}

func setFloat64(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func cloneStrings(src []string) []string {
	if len(src) == 0 {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

func cloneHeaders(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
