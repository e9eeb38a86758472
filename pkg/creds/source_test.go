package creds

import (
	"fmt"
	"testing"
)

func TestFatalError(t *testing.T) {
	err := checkFatalError(fmt.Errorf("Code: 403. Errors: permission denied"))
	if err != ErrPermissionDenied {
		t.Errorf("error should be permission denied got: %v", err)
	}

	err = checkFatalError(fmt.Errorf("rejected: %w", ErrPermissionDenied))
	if err != ErrPermissionDenied {
		t.Errorf("wrapped sentinel should be permission denied got: %v", err)
	}

	err = checkFatalError(fmt.Errorf("foo"))
	if err != nil {
		t.Errorf("error should be nil got: %v", err)
	}
}
