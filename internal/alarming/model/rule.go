package model

import (
	"regexp"
	"strings"
	"time"
)

// RuleType selects which predicate an AlarmRule carries.
type RuleType string

const (
	RuleTypeCorrelation RuleType = "correlation"
	RuleTypeSuppression RuleType = "suppression"
)

// AlarmRule is a tenant-scoped declarative policy. Rules are evaluated in
// ascending Priority order; the first match wins. Exactly one of Suppression
// or Correlation is set, per RuleType. Predicates are validated when the rule
// is created, not at evaluation time.
type AlarmRule struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	Name     string   `json:"name"`
	RuleType RuleType `json:"rule_type"`
	Enabled  bool     `json:"enabled"`
	Priority int      `json:"priority"`

	Suppression *SuppressionPredicate `json:"suppression,omitempty"`
	Correlation *CorrelationPredicate `json:"correlation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SuppressionPredicate matches alarms that should be created or moved into
// suppressed status. Every set field must match; AlarmType supports the
// wildcard form (see MatchWildcard), the rest match by exact value.
type SuppressionPredicate struct {
	AlarmType    string   `json:"alarm_type,omitempty"`
	Severity     Severity `json:"severity,omitempty"`
	Source       Source   `json:"source,omitempty"`
	ResourceType string   `json:"resource_type,omitempty"`
}

// Matches reports whether every set condition matches the alarm.
func (p *SuppressionPredicate) Matches(a *Alarm) bool {
	if p.AlarmType != "" && !MatchWildcard(p.AlarmType, a.AlarmType) {
		return false
	}
	if p.Severity != "" && p.Severity != a.Severity {
		return false
	}
	if p.Source != "" && p.Source != a.Source {
		return false
	}
	if p.ResourceType != "" && p.ResourceType != a.ResourceType {
		return false
	}
	return true
}

// Validate fails closed on predicates that could never match or would blow up
// at evaluation time.
func (p *SuppressionPredicate) Validate() error {
	if p.AlarmType == "" && p.Severity == "" && p.Source == "" && p.ResourceType == "" {
		return &ConfigurationError{Reason: "suppression predicate has no conditions"}
	}
	if p.AlarmType != "" {
		if _, err := compileWildcard(p.AlarmType); err != nil {
			return &ConfigurationError{Reason: "invalid alarm_type pattern: " + err.Error()}
		}
	}
	if p.Severity != "" && p.Severity.Rank() < 0 {
		return &ConfigurationError{Reason: "unknown severity: " + string(p.Severity)}
	}
	return nil
}

// CorrelationPredicate links a child alarm to a root-cause parent. The child
// side is either an exact alarm type or ChildPattern, an RE2 expression
// matched against the child's description. A child correlates when the parent
// occurred first and the gap is at most TimeWindowMinutes (boundary included).
type CorrelationPredicate struct {
	ParentAlarmType   string `json:"parent_alarm_type"`
	ChildAlarmType    string `json:"child_alarm_type,omitempty"`
	ChildPattern      string `json:"child_pattern,omitempty"`
	TimeWindowMinutes int    `json:"time_window_minutes"`

	// MarkRootCause is the rule action applied when the current alarm matches
	// the parent side and starts a fresh correlation group.
	MarkRootCause bool `json:"mark_root_cause,omitempty"`
}

// MatchesParent reports whether the alarm matches the parent side.
func (p *CorrelationPredicate) MatchesParent(a *Alarm) bool {
	return MatchWildcard(p.ParentAlarmType, a.AlarmType)
}

// MatchesChild reports whether the alarm matches the child side.
func (p *CorrelationPredicate) MatchesChild(a *Alarm) bool {
	if p.ChildAlarmType != "" {
		return p.ChildAlarmType == a.AlarmType
	}
	if p.ChildPattern != "" {
		re, err := regexp.Compile(p.ChildPattern)
		if err != nil {
			return false
		}
		return re.MatchString(a.Description) || re.MatchString(a.Title)
	}
	return false
}

// Window returns the correlation window as a duration.
func (p *CorrelationPredicate) Window() time.Duration {
	return time.Duration(p.TimeWindowMinutes) * time.Minute
}

func (p *CorrelationPredicate) Validate() error {
	if p.ParentAlarmType == "" {
		return &ConfigurationError{Reason: "correlation predicate missing parent_alarm_type"}
	}
	if _, err := compileWildcard(p.ParentAlarmType); err != nil {
		return &ConfigurationError{Reason: "invalid parent_alarm_type pattern: " + err.Error()}
	}
	if p.ChildAlarmType == "" && p.ChildPattern == "" {
		return &ConfigurationError{Reason: "correlation predicate needs child_alarm_type or child_pattern"}
	}
	if p.ChildAlarmType != "" && p.ChildPattern != "" {
		return &ConfigurationError{Reason: "correlation predicate sets both child_alarm_type and child_pattern"}
	}
	if p.ChildPattern != "" {
		if _, err := regexp.Compile(p.ChildPattern); err != nil {
			return &ConfigurationError{Reason: "invalid child_pattern: " + err.Error()}
		}
	}
	if p.TimeWindowMinutes <= 0 {
		return &ConfigurationError{Reason: "correlation predicate missing time_window_minutes"}
	}
	return nil
}

// Validate checks rule_type/predicate consistency and the predicate itself.
func (r *AlarmRule) Validate() error {
	switch r.RuleType {
	case RuleTypeSuppression:
		if r.Suppression == nil || r.Correlation != nil {
			return &ConfigurationError{Reason: "suppression rule must carry exactly a suppression predicate"}
		}
		return r.Suppression.Validate()
	case RuleTypeCorrelation:
		if r.Correlation == nil || r.Suppression != nil {
			return &ConfigurationError{Reason: "correlation rule must carry exactly a correlation predicate"}
		}
		return r.Correlation.Validate()
	default:
		return &ConfigurationError{Reason: "unknown rule_type: " + string(r.RuleType)}
	}
}

// MatchWildcard matches value against a glob-style pattern where "*" matches
// any run of characters and everything else is literal, so "threshold.*"
// matches "threshold.disk" but not "thresholds". A pattern without "*" is a
// plain equality check.
func MatchWildcard(pattern, value string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == value
	}
	re, err := compileWildcard(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

func compileWildcard(pattern string) (*regexp.Regexp, error) {
	expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	return regexp.Compile(expr)
}
