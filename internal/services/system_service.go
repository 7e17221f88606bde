package services

import (
	"cmp"
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

// BuildInfo is the release metadata reported by the readiness endpoint.
type BuildInfo struct {
	Version     string
	Environment string
}

type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	// CacheFor reuses a report for this long so frequent probes do not hit every dependency.
	// Zero disables caching; concurrent probes still share one collection.
	CacheFor time.Duration
}

type systemService struct {
	health   repositories.HealthRepository
	clock    func() time.Time
	build    BuildInfo
	cacheFor time.Duration

	probes   singleflight.Group
	mu       sync.Mutex
	cached   SystemHealthReport
	cachedAt time.Time
}

var _ SystemService = (*systemService)(nil)

func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &systemService{
		health:   deps.HealthRepository,
		clock:    clock,
		build:    deps.Build,
		cacheFor: deps.CacheFor,
	}, nil
}

// HealthReport collects dependency health and stamps build metadata where the repository left
// it empty.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}
	now := s.clock().UTC()
	if report, ok := s.fromCache(now); ok {
		return report, nil
	}

	// The collection outlives a caller that gives up; others may be waiting on it.
	v, err, _ := s.probes.Do("health", func() (any, error) {
		return s.health.Collect(context.WithoutCancel(ctx))
	})
	if err != nil {
		return SystemHealthReport{}, err
	}
	report := s.complete(v.(SystemHealthReport), now)

	if s.cacheFor > 0 {
		s.mu.Lock()
		s.cached, s.cachedAt = report, now
		s.mu.Unlock()
	}
	return report, nil
}

func (s *systemService) fromCache(now time.Time) (SystemHealthReport, bool) {
	if s.cacheFor <= 0 {
		return SystemHealthReport{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cachedAt.IsZero() || now.Sub(s.cachedAt) >= s.cacheFor {
		return SystemHealthReport{}, false
	}
	return s.cached, true
}

func (s *systemService) complete(report SystemHealthReport, now time.Time) SystemHealthReport {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.GeneratedAt = report.GeneratedAt.UTC()
	report.Version = cmp.Or(report.Version, s.build.Version)
	report.Environment = cmp.Or(report.Environment, s.build.Environment)
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if report.Status == "" {
		report.Status = worstStatus(report.Checks)
	}
	return report
}

// worstStatus is error if any check errored, degraded if any check is not ok, otherwise ok.
func worstStatus(checks map[string]domain.SystemHealthCheck) domain.HealthStatus {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
