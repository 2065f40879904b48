package resultx

import (
	"fmt"
	"sort"
	"strings"
)

// FailureKind is the semantic category of a task failure.
type FailureKind string

const (
	// KindExpected is a business-logic failure raised on purpose by a native task.
	KindExpected FailureKind = "expected"
	// KindUnexpected is an unanticipated defect in a native task.
	KindUnexpected FailureKind = "unexpected"
	// KindOther covers foreign producers and platform faults.
	KindOther FailureKind = "other"
)

// ParseFailureKind accepts the names used in configuration.
func ParseFailureKind(s string) (FailureKind, error) {
	switch FailureKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindExpected:
		return KindExpected, nil
	case KindUnexpected:
		return KindUnexpected, nil
	case KindOther:
		return KindOther, nil
	default:
		return "", fmt.Errorf("unknown failure kind %q", s)
	}
}

// Fault names a platform-level cause recognised alongside the kind.
type Fault string

const (
	FaultNone      Fault = ""
	FaultTimeLimit Fault = "time_limit"
)

// Exception type and module written by the native Processor.
const (
	NativeModule         = "resultx"
	ExcTypeExpected      = "ExpectedError"
	ExcTypeUnexpected    = "UnexpectedError"
	ExcTypeTimeLimit     = "TimeLimitExceeded"
	ExcTypeSoftTimeLimit = "SoftTimeLimitExceeded"
)

// Rule maps a failure record to a classification. Empty match fields are
// wildcards; a rule with no match fields never matches.
type Rule struct {
	Kind  FailureKind
	Fault Fault

	ExcType         string
	ExcModule       string
	TracebackMarker string
}

func (r Rule) matches(rec *FailureRecord) bool {
	if r.ExcType == "" && r.ExcModule == "" && r.TracebackMarker == "" {
		return false
	}
	if r.ExcType != "" && rec.Exception.Type != r.ExcType {
		return false
	}
	if r.ExcModule != "" && rec.Exception.Module != r.ExcModule {
		return false
	}
	if r.TracebackMarker != "" && !containsMarker(rec, r.TracebackMarker) {
		return false
	}
	return true
}

// containsMarker searches the exception traceback first and falls back to
// the record traceback, which is where most foreign producers write it.
func containsMarker(rec *FailureRecord, marker string) bool {
	return strings.Contains(string(rec.Exception.Traceback), marker) ||
		strings.Contains(string(rec.Traceback), marker)
}

// Classification is the outcome of classifying a FailureRecord.
type Classification struct {
	Kind  FailureKind
	Fault Fault
}

// TimeLimit reports whether the failure was a time-limit violation.
func (c Classification) TimeLimit() bool {
	return c.Fault == FaultTimeLimit
}

// NativeRules recognise the kinds tagged by the native Processor.
func NativeRules() []Rule {
	return []Rule{
		{Kind: KindExpected, ExcType: ExcTypeExpected, ExcModule: NativeModule},
		{Kind: KindUnexpected, ExcType: ExcTypeUnexpected, ExcModule: NativeModule},
	}
}

// DefaultRules are NativeRules followed by the two canonical time-limit
// exception names.
func DefaultRules() []Rule {
	return append(NativeRules(), TimeLimitRules(ExcTypeTimeLimit, ExcTypeSoftTimeLimit)...)
}

// TimeLimitRules builds one time-limit rule per exception type name.
func TimeLimitRules(types ...string) []Rule {
	rules := make([]Rule, 0, len(types))
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			rules = append(rules, Rule{Kind: KindOther, Fault: FaultTimeLimit, ExcType: t})
		}
	}
	return rules
}

// MarkerRules builds traceback-marker rules from a marker to kind table.
func MarkerRules(markers map[string]string) ([]Rule, error) {
	rules := make([]Rule, 0, len(markers))
	for marker, kindName := range markers {
		kind, err := ParseFailureKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("marker %q: %w", marker, err)
		}
		rules = append(rules, Rule{Kind: kind, TracebackMarker: marker})
	}
	// map order is random; keep classification deterministic
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].TracebackMarker < rules[j].TracebackMarker
	})
	return rules, nil
}

// Classifier assigns a Classification to failure records using an ordered
// rule table. The first matching rule wins; records no rule matches are
// KindOther.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a classifier over rules. With no rules it uses
// DefaultRules.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

func (c *Classifier) Classify(rec *FailureRecord) Classification {
	if rec == nil {
		return Classification{Kind: KindOther}
	}
	for _, r := range c.rules {
		if r.matches(rec) {
			return Classification{Kind: r.Kind, Fault: r.Fault}
		}
	}
	return Classification{Kind: KindOther}
}
