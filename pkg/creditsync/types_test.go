package creditsync_test

import (
	"testing"

	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

func TestOptional_ZeroValueIsUnknown(t *testing.T) {
	var o creditsync.Optional[string]

	if o.IsKnown() {
		t.Error("Zero value must be Unknown")
	}
	if _, ok := o.Get(); ok {
		t.Error("Get on Unknown must report not-ok")
	}
	if o.OrZero() != "" {
		t.Error("OrZero on Unknown must be the zero value")
	}
}

func TestOptional_KnownEmptyDiffersFromUnknown(t *testing.T) {
	unknown := creditsync.Optional[string]{}
	knownEmpty := creditsync.Known("")

	if unknown.IsKnown() == knownEmpty.IsKnown() {
		t.Error("Never-synced and synced-empty must be distinguishable")
	}

	value, ok := knownEmpty.Get()
	if !ok || value != "" {
		t.Errorf("Expected known empty string, got %q/%v", value, ok)
	}
}

func TestProfilePatch_IsEmpty(t *testing.T) {
	if !(creditsync.ProfilePatch{}).IsEmpty() {
		t.Error("Zero patch must be empty")
	}
	patch := creditsync.ProfilePatch{PlanName: creditsync.String("")}
	if patch.IsEmpty() {
		t.Error("A set pointer makes the patch non-empty, even pointing at \"\"")
	}
}
