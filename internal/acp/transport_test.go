package acp

import (
	"context"
	"testing"
)

func TestCallNotConnectedReturnsError(t *testing.T) {
	tr := New(Config{Command: "does-not-matter"}, nil, nil)
	_, err := tr.Call(context.Background(), "session/new", nil, nil)
	if err == nil {
		t.Fatalf("expected error calling before Connect")
	}
}

func TestNotifyNotConnectedReturnsError(t *testing.T) {
	tr := New(Config{Command: "does-not-matter"}, nil, nil)
	if err := tr.Notify("session/update", nil); err == nil {
		t.Fatalf("expected error notifying before Connect")
	}
}

func TestToInt64(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{float64(5), 5, true},
		{int64(7), 7, true},
		{int(9), 9, true},
		{"nope", 0, false},
	}
	for _, c := range cases {
		got, ok := toInt64(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("toInt64(%v) = (%d, %v), want (%d, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestFilteredEnvRestrictsToAllowlist(t *testing.T) {
	env := filteredEnv([]string{"PATH"})
	for _, kv := range env {
		if len(kv) < 5 || kv[:5] != "PATH=" {
			t.Fatalf("expected only PATH in filtered env, got %q", kv)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Command: "x"}.withDefaults()
	if cfg.ConnectTimeout == 0 || cfg.RequestTimeout == 0 || cfg.ActivityInterval == 0 {
		t.Fatalf("expected non-zero defaults, got %+v", cfg)
	}
}
