package supervisor

import (
	"errors"
	"testing"

	"github.com/rgs1/zksoak/internal/engine"
)

// TestDropPrivilegesMissingUserIsFatal covers spec.md §9 open question
// (c): an unresolvable switch-uid account must surface as an
// ExitSystemCall FatalError rather than being silently skipped.
func TestDropPrivilegesMissingUserIsFatal(t *testing.T) {
	err := DropPrivileges("zksoak-child-does-not-exist-", 999999)
	if err == nil {
		t.Fatal("expected an error for a nonexistent switch-uid account")
	}

	var fatal *engine.FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *engine.FatalError, got %T: %v", err, err)
	}
	if fatal.Code != engine.ExitSystemCall {
		t.Errorf("expected ExitSystemCall (%d), got %d", engine.ExitSystemCall, fatal.Code)
	}
}
