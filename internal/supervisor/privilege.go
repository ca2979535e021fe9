package supervisor

import (
	"fmt"
	"os/user"
	"strconv"
	"syscall"

	"github.com/rgs1/zksoak/internal/engine"
)

// DropPrivileges resolves "<uidPrefix><childIndex>" as a system user
// and calls setgid/setuid to drop to it, per SPEC_FULL §3.1's
// resolution of spec.md §9 open question (c). A missing user is
// treated as fatal (exit code 2, matching the original's behavior on
// an unresolvable switch-uid account), not silently skipped.
//
// Must be called before any session-establishing goroutine starts:
// setuid(2) on Linux only affects the calling thread's effective UID
// unless done before additional OS threads are spawned by the Go
// runtime's thread pool picking up the new credentials, so main.go
// calls this immediately after re-exec, before engine.New.
func DropPrivileges(uidPrefix string, childIndex int) error {
	username := fmt.Sprintf("%s%d", uidPrefix, childIndex)

	u, err := user.Lookup(username)
	if err != nil {
		return &engine.FatalError{Code: engine.ExitSystemCall, Err: fmt.Errorf("switch-uid user %q not found: %w", username, err)}
	}

	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return &engine.FatalError{Code: engine.ExitSystemCall, Err: fmt.Errorf("invalid gid for %q: %w", username, err)}
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return &engine.FatalError{Code: engine.ExitSystemCall, Err: fmt.Errorf("invalid uid for %q: %w", username, err)}
	}

	if err := syscall.Setgid(gid); err != nil {
		return &engine.FatalError{Code: engine.ExitSystemCall, Err: fmt.Errorf("setgid(%d): %w", gid, err)}
	}
	if err := syscall.Setuid(uid); err != nil {
		return &engine.FatalError{Code: engine.ExitSystemCall, Err: fmt.Errorf("setuid(%d): %w", uid, err)}
	}

	return nil
}
