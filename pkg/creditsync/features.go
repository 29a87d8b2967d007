package creditsync

import "strings"

// DefaultPlanFeatures returns the built-in plan-to-feature table. Plans map
// to the set of feature names they unlock; unknown plans grant nothing.
func DefaultPlanFeatures() map[string][]string {
	return map[string][]string{
		"free":       {"basic"},
		"pro":        {"basic", "advanced"},
		"enterprise": {"basic", "advanced", "enterprise"},
	}
}

// Entitlements evaluates feature access against a static plan-to-feature
// table. Plan and feature names are compared case-insensitively.
type Entitlements struct {
	plans map[string]map[string]bool
}

// NewEntitlements builds an Entitlements table. A nil mapping uses
// DefaultPlanFeatures.
func NewEntitlements(mapping map[string][]string) *Entitlements {
	if mapping == nil {
		mapping = DefaultPlanFeatures()
	}

	plans := make(map[string]map[string]bool, len(mapping))
	for plan, features := range mapping {
		set := make(map[string]bool, len(features))
		for _, f := range features {
			set[strings.ToLower(strings.TrimSpace(f))] = true
		}
		plans[strings.ToLower(strings.TrimSpace(plan))] = set
	}

	return &Entitlements{plans: plans}
}

// HasFeature reports whether the plan unlocks the feature. An empty or
// unknown plan name grants no features.
func (e *Entitlements) HasFeature(planName, feature string) bool {
	if planName == "" || feature == "" {
		return false
	}
	set, ok := e.plans[strings.ToLower(strings.TrimSpace(planName))]
	if !ok {
		return false
	}
	return set[strings.ToLower(strings.TrimSpace(feature))]
}

// Plans returns the plan names the table knows about.
func (e *Entitlements) Plans() []string {
	names := make([]string, 0, len(e.plans))
	for plan := range e.plans {
		names = append(names, plan)
	}
	return names
}

// Features returns the feature names unlocked by a plan, or nil for an
// unknown plan.
func (e *Entitlements) Features(planName string) []string {
	set, ok := e.plans[strings.ToLower(strings.TrimSpace(planName))]
	if !ok {
		return nil
	}
	features := make([]string, 0, len(set))
	for f := range set {
		features = append(features, f)
	}
	return features
}
