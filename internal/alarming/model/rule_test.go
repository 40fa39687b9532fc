package model

import "testing"

func TestMatchWildcard(t *testing.T) {
	cases := []struct {
		pattern, value string
		want           bool
	}{
		{"link-down", "link-down", true},
		{"link-down", "link-up", false},
		{"threshold.*", "threshold.disk", true},
		{"threshold.*", "threshold.", true},
		{"threshold.*", "thresholds", false},
		{"*", "anything", true},
		{"*down", "link-down", true},
		{"*down", "downlink", false},
		{"a*c", "abc", true},
		{"a*c", "ac", true},
		{"a*c", "abd", false},
		// regex metacharacters in the pattern are literal
		{"cpu[0]", "cpu[0]", true},
		{"cpu[0]", "cpu0", false},
	}
	for _, tc := range cases {
		if got := MatchWildcard(tc.pattern, tc.value); got != tc.want {
			t.Errorf("MatchWildcard(%q, %q) = %v, want %v", tc.pattern, tc.value, got, tc.want)
		}
	}
}

func TestSuppressionPredicateMatches(t *testing.T) {
	a := &Alarm{
		AlarmType:    "threshold.cpu",
		Severity:     SeverityWarning,
		Source:       SourceCPE,
		ResourceType: "cpe",
	}
	if !(&SuppressionPredicate{AlarmType: "threshold.*"}).Matches(a) {
		t.Fatal("wildcard type should match")
	}
	if !(&SuppressionPredicate{AlarmType: "threshold.*", Source: SourceCPE, Severity: SeverityWarning}).Matches(a) {
		t.Fatal("all-conditions predicate should match")
	}
	if (&SuppressionPredicate{AlarmType: "threshold.*", Source: SourceMonitoring}).Matches(a) {
		t.Fatal("one failing condition must reject")
	}
	if (&SuppressionPredicate{ResourceType: "router"}).Matches(a) {
		t.Fatal("resource type mismatch must reject")
	}
}

func TestCorrelationPredicateChildSides(t *testing.T) {
	p := &CorrelationPredicate{ParentAlarmType: "fiber-cut", ChildAlarmType: "link-down", TimeWindowMinutes: 10}
	if !p.MatchesChild(&Alarm{AlarmType: "link-down"}) {
		t.Fatal("exact child type should match")
	}
	if p.MatchesChild(&Alarm{AlarmType: "link-up"}) {
		t.Fatal("other child type must not match")
	}

	p = &CorrelationPredicate{ParentAlarmType: "power-failure", ChildPattern: "(?i)unreachable", TimeWindowMinutes: 10}
	if !p.MatchesChild(&Alarm{Description: "host UNREACHABLE"}) {
		t.Fatal("pattern should match the description")
	}
	if !p.MatchesChild(&Alarm{Title: "CPE unreachable", Description: "n/a"}) {
		t.Fatal("pattern should fall through to the title")
	}
	if p.MatchesChild(&Alarm{Description: "healthy"}) {
		t.Fatal("non-matching text must not match")
	}

	empty := &CorrelationPredicate{ParentAlarmType: "x", TimeWindowMinutes: 10}
	if empty.MatchesChild(&Alarm{AlarmType: "anything", Description: "anything"}) {
		t.Fatal("predicate without a child side matches nothing")
	}
}

func TestRuleValidate(t *testing.T) {
	good := &AlarmRule{
		TenantID: "t1", Name: "r", RuleType: RuleTypeSuppression,
		Suppression: &SuppressionPredicate{AlarmType: "link-down"},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	badSeverity := &AlarmRule{
		TenantID: "t1", Name: "r", RuleType: RuleTypeSuppression,
		Suppression: &SuppressionPredicate{Severity: "catastrophic"},
	}
	if err := badSeverity.Validate(); !IsConfiguration(err) {
		t.Fatalf("unknown severity must fail validation, got %v", err)
	}

	missingParent := &AlarmRule{
		TenantID: "t1", Name: "r", RuleType: RuleTypeCorrelation,
		Correlation: &CorrelationPredicate{ChildAlarmType: "c", TimeWindowMinutes: 5},
	}
	if err := missingParent.Validate(); !IsConfiguration(err) {
		t.Fatalf("missing parent type must fail validation, got %v", err)
	}
}
