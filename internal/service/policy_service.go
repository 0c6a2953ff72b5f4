package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tc-academic-api/internal/models"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

type policyRepository interface {
	ListByKeys(ctx context.Context, keys []string) ([]models.Policy, error)
}

// PolicyReader is the read-only view of policy values consumed by the decision services.
type PolicyReader interface {
	Snapshot(ctx context.Context) (models.Policies, error)
}

var builtinPolicyDefaults = map[string]string{
	models.PolicyMakeupLookbackWeeks:      "4",
	models.PolicyMakeupDeadlineWeeks:      "4",
	models.PolicyTransferMaxPerSubject:    "1",
	models.PolicyAbsenceLeadTimeDays:      "1",
	models.PolicyMinReasonLength:          "10",
	models.PolicyMinRejectNoteLength:      "10",
	models.PolicyRequestExpiryDays:        "7",
	models.PolicyTeacherRequestExpiryDays: "3",
	models.PolicyMinOverrideReasonLength:  "20",
	models.PolicySessionReminderHours:     "24,36",
	models.PolicySessionEscalationHours:   "48",
}

const (
	policyCacheKey     = "policy:values"
	policyCachePattern = "policy:*"
)

// PolicyServiceConfig tunes runtime behaviour.
type PolicyServiceConfig struct {
	Defaults map[string]string
	CacheTTL time.Duration
}

// PolicyService reads policy values from the policies table, falling back to configured defaults.
type PolicyService struct {
	repo     policyRepository
	cache    *CacheService
	logger   *zap.Logger
	defaults map[string]string
	ttl      time.Duration
}

// NewPolicyService constructs a PolicyService. cache may be nil.
func NewPolicyService(repo policyRepository, cache *CacheService, logger *zap.Logger, cfg PolicyServiceConfig) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := make(map[string]string, len(builtinPolicyDefaults))
	for key, value := range builtinPolicyDefaults {
		defaults[key] = value
	}
	for key, value := range cfg.Defaults {
		if _, known := builtinPolicyDefaults[key]; !known || strings.TrimSpace(value) == "" {
			continue
		}
		defaults[key] = strings.TrimSpace(value)
	}
	return &PolicyService{repo: repo, cache: cache, logger: logger, defaults: defaults, ttl: cfg.CacheTTL}
}

func policyKeys() []string {
	keys := make([]string, 0, len(builtinPolicyDefaults))
	for key := range builtinPolicyDefaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *PolicyService) values(ctx context.Context) (map[string]string, error) {
	values := make(map[string]string, len(s.defaults))
	err := s.cache.Remember(ctx, policyCacheKey, &values, s.ttl, func(ctx context.Context) (interface{}, error) {
		rows, err := s.repo.ListByKeys(ctx, policyKeys())
		if err != nil {
			return nil, err
		}
		merged := make(map[string]string, len(s.defaults))
		for key, value := range s.defaults {
			merged[key] = value
		}
		for _, row := range rows {
			if strings.TrimSpace(row.Value) != "" {
				merged[row.Key] = strings.TrimSpace(row.Value)
			}
		}
		return merged, nil
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load policies")
	}
	return values, nil
}

// Get returns the raw value of a single policy key.
func (s *PolicyService) Get(ctx context.Context, key string) (string, error) {
	if _, known := builtinPolicyDefaults[key]; !known {
		return "", appErrors.Clone(appErrors.ErrNotFound, "unknown policy key: "+key)
	}
	values, err := s.values(ctx)
	if err != nil {
		return "", err
	}
	return values[key], nil
}

// Snapshot returns every policy the core consumes, parsed.
func (s *PolicyService) Snapshot(ctx context.Context) (models.Policies, error) {
	values, err := s.values(ctx)
	if err != nil {
		return models.Policies{}, err
	}
	return models.Policies{
		MakeupLookbackWeeks:      s.intValue(values, models.PolicyMakeupLookbackWeeks),
		MakeupDeadlineWeeks:      s.intValue(values, models.PolicyMakeupDeadlineWeeks),
		TransferMaxPerSubject:    s.intValue(values, models.PolicyTransferMaxPerSubject),
		AbsenceLeadTimeDays:      s.intValue(values, models.PolicyAbsenceLeadTimeDays),
		MinReasonLength:          s.intValue(values, models.PolicyMinReasonLength),
		MinRejectNoteLength:      s.intValue(values, models.PolicyMinRejectNoteLength),
		RequestExpiryDays:        s.intValue(values, models.PolicyRequestExpiryDays),
		TeacherRequestExpiryDays: s.intValue(values, models.PolicyTeacherRequestExpiryDays),
		MinOverrideReasonLength:  s.intValue(values, models.PolicyMinOverrideReasonLength),
		ReminderHours:            s.intList(values, models.PolicySessionReminderHours),
		EscalationHours:          s.intValue(values, models.PolicySessionEscalationHours),
	}, nil
}

// Refresh drops cached policy values and reloads them, so edits to the policies table apply
// before the cache TTL runs out.
func (s *PolicyService) Refresh(ctx context.Context) (models.Policies, error) {
	if err := s.cache.Invalidate(ctx, policyCachePattern); err != nil {
		return models.Policies{}, appErrors.Internal(err, "failed to invalidate policy cache")
	}
	s.logger.Info("policy cache invalidated")
	return s.Snapshot(ctx)
}

func (s *PolicyService) intValue(values map[string]string, key string) int {
	if v, err := strconv.Atoi(values[key]); err == nil && v >= 0 {
		return v
	}
	s.logger.Warn("invalid policy value, using default", zap.String("key", key), zap.String("value", values[key]))
	v, _ := strconv.Atoi(builtinPolicyDefaults[key])
	return v
}

func (s *PolicyService) intList(values map[string]string, key string) []int {
	parse := func(raw string) ([]int, bool) {
		parts := strings.Split(raw, ",")
		out := make([]int, 0, len(parts))
		for _, part := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || v < 0 {
				return nil, false
			}
			out = append(out, v)
		}
		sort.Ints(out)
		return out, len(out) > 0
	}
	if out, ok := parse(values[key]); ok {
		return out
	}
	s.logger.Warn("invalid policy list, using default", zap.String("key", key), zap.String("value", values[key]))
	out, _ := parse(builtinPolicyDefaults[key])
	return out
}
