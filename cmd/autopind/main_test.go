package main

import (
	"errors"
	"fmt"
	"testing"
)

func TestTargetNameStripsExtension(t *testing.T) {
	cases := map[string]string{
		"/etc/autopind/app1.cfg": "app1",
		"target.conf":            "target",
		"noext":                  "noext",
	}
	for path, want := range cases {
		if got := targetName(path); got != want {
			t.Errorf("targetName(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestIsUsageErrorDetectsDirect(t *testing.T) {
	var uerr *usageError
	err := &usageError{fmt.Errorf("bad flags")}
	if !isUsageError(err, &uerr) {
		t.Fatal("expected usage error to be detected")
	}
}

func TestIsUsageErrorDetectsWrapped(t *testing.T) {
	var uerr *usageError
	inner := &usageError{fmt.Errorf("bad flags")}
	wrapped := fmt.Errorf("outer: %w", inner)
	if !isUsageError(wrapped, &uerr) {
		t.Fatal("expected wrapped usage error to be detected")
	}
}

func TestIsUsageErrorRejectsPlain(t *testing.T) {
	var uerr *usageError
	if isUsageError(errors.New("plain"), &uerr) {
		t.Fatal("plain error should not be detected as a usage error")
	}
}
