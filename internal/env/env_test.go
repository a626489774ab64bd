package env

import (
	"testing"
)

func TestMergePrecedence(t *testing.T) {
	e := New(false)
	e.SetAll([]string{"A=1", "B=2", "malformed", "=nokey"})
	e.Set("B", "3")
	got := e.Merge([]string{"C=${A}-${B}", "A=9"})
	want := []string{"A=9", "B=3", "C=9-3"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestMergeKeepsUnknownReferences(t *testing.T) {
	var e Env
	got := e.Merge([]string{"X=${MISSING}/bin"})
	if len(got) != 1 || got[0] != "X=${MISSING}/bin" {
		t.Fatalf("unexpected merge result: %v", got)
	}
}

func TestNewFromOS(t *testing.T) {
	t.Setenv("LAUNCHR_ENV_TEST", "present")
	e := New(true)
	found := false
	for _, kv := range e.Merge(nil) {
		if kv == "LAUNCHR_ENV_TEST=present" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected OS variable in merged env")
	}
}
