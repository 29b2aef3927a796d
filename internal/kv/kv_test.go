package kv

import "testing"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetStringAbsentIsEmpty(t *testing.T) {
	s := newTestStore(t)
	v, err := s.GetString("missing")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if v != "" {
		t.Errorf("GetString(missing) = %q, want empty", v)
	}
	if found, err := s.Exists("missing"); err != nil || found {
		t.Errorf("Exists(missing) = (%v, %v), want (false, nil)", found, err)
	}
}

func TestSetGetStringRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetString("k", "v"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	v, err := s.GetString("k")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if v != "v" {
		t.Fatalf("GetString(k) = %q, want v", v)
	}
	if found, err := s.Exists("k"); err != nil || !found {
		t.Errorf("Exists(k) = (%v, %v), want (true, nil)", found, err)
	}
}

func TestSetGetIntRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetInt("n", 42); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	v, err := s.GetInt("n")
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if v != 42 {
		t.Fatalf("GetInt(n) = %d, want 42", v)
	}
	if got := s.MustGetInt("n"); got != 42 {
		t.Errorf("MustGetInt(n) = %d, want 42", got)
	}
	if got := s.MustGetInt("missing"); got != 0 {
		t.Errorf("MustGetInt(missing) = %d, want 0", got)
	}
}

func TestIncrementCreatesAndAccumulates(t *testing.T) {
	s := newTestStore(t)
	if err := s.Increment("counter", 0); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if got := s.MustGetInt("counter"); got != 1 {
		t.Fatalf("MustGetInt(counter) = %d, want 1 (delta=0 defaults to 1)", got)
	}
	if err := s.Increment("counter", 5); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if got := s.MustGetInt("counter"); got != 6 {
		t.Fatalf("MustGetInt(counter) = %d, want 6", got)
	}
}

func TestSetIfNotExistsOnlySetsOnce(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetIfNotExists("k", "first"); err != nil {
		t.Fatalf("SetIfNotExists: %v", err)
	}
	if err := s.SetIfNotExists("k", "second"); err != nil {
		t.Fatalf("SetIfNotExists: %v", err)
	}
	v, err := s.GetString("k")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if v != "first" {
		t.Fatalf("GetString(k) = %q, want first (second write should be a no-op)", v)
	}
}

func TestDeleteMissingKeyIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete("missing"); err != nil {
		t.Errorf("Delete(missing): %v, want nil", err)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetString("k", "v"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if found, err := s.Exists("k"); err != nil || found {
		t.Errorf("Exists(k) after Delete = (%v, %v), want (false, nil)", found, err)
	}
}

func TestAllListsEveryEntry(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetString("a", "1"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := s.SetString("b", "2"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	entries, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(entries))
	}
	got := map[string]string{}
	for _, e := range entries {
		got[e.Key] = e.Value
	}
	if got["a"] != "1" || got["b"] != "2" {
		t.Fatalf("All() = %+v, want a=1 b=2", got)
	}
}
