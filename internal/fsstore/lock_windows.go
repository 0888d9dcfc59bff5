//go:build windows

package fsstore

import (
	"context"
	"fmt"
	"os"
)

// Windows builds fall back to exclusive lock-file creation. The deployment
// targets are unix hosts; this keeps the package compiling elsewhere.
func withLockFile(ctx context.Context, lockPath string, fn func() error) error {
	for {
		file, err := os.OpenFile(lockPath+".w", os.O_CREATE|os.O_EXCL|os.O_RDWR, FilePerm)
		if err == nil {
			defer func() {
				_ = file.Close()
				_ = os.Remove(lockPath + ".w")
			}()
			return fn()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("%w: open %s: %v", ErrLockUnavailable, lockPath, err)
		}
		if waitErr := waitForLockRetry(ctx, lockPath); waitErr != nil {
			return waitErr
		}
	}
}
