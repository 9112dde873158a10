package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the extractor is failing but the store answers.
	Degraded Status = "degraded"
	// Unhealthy indicates the vector store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckPending indicates a model that loads on first use.
	CheckPending CheckResult = "pending"
)

// Component names in Report.Checks.
const (
	ComponentStore     = "store"
	ComponentExtractor = "extractor"
	ComponentModel     = "model"
)

// DefaultTimeout bounds each component check.
const DefaultTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	extractor ExtractorChecker
	model     ModelState
	timeout   time.Duration
}

// New creates a Service. extractor and model can be nil.
func New(store StorePinger, extractor ExtractorChecker, model ModelState) *Service {
	return &Service{store: store, extractor: extractor, model: model, timeout: DefaultTimeout}
}

// WithTimeout overrides the per-check timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, 3)

	checks[ComponentStore] = s.run(ctx, s.store.Ping)
	if s.extractor != nil {
		checks[ComponentExtractor] = s.run(ctx, s.extractor.HealthCheck)
	}
	if s.model != nil {
		checks[ComponentModel] = CheckPending
		if s.model.Loaded() {
			checks[ComponentModel] = CheckOK
		}
	}

	status := Healthy
	switch {
	case checks[ComponentStore] == CheckError:
		status = Unhealthy
	case checks[ComponentExtractor] == CheckError:
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}

func (s *Service) run(ctx context.Context, check func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := check(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
