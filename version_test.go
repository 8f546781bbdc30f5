package lode_test

import (
	"testing"

	lode "github.com/felixgeelhaar/lode"
)

func TestGetVersion(t *testing.T) {
	t.Parallel()

	if lode.GetVersion() != lode.Version {
		t.Errorf("GetVersion() = %s, want %s", lode.GetVersion(), lode.Version)
	}
	if lode.Version == "" {
		t.Error("Version should not be empty")
	}
}
