package skills

import "testing"

func newTestEngine(t *testing.T, specs ...string) *Engine {
	t.Helper()
	dir := t.TempDir()
	for i, contents := range specs {
		writeSkillFile(t, dir, pad(i)+".skill.json", contents)
	}
	e := NewEngine([]string{dir}, nil, nil)
	e.Reload()
	return e
}

func pad(i int) string {
	letters := "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%len(letters)])
}

func TestEngineSelectMatchesSubstringTrigger(t *testing.T) {
	e := newTestEngine(t,
		`{"skill_id": "git-helper", "triggers": ["git status"], "system_prompt": "use git porcelain"}`,
		`{"skill_id": "docker-helper", "triggers": ["docker"], "system_prompt": "use docker compose"}`,
	)

	sel := e.Select("can you run git status for me")
	if len(sel.Selected) != 1 || sel.Selected[0].SkillID != "git-helper" {
		t.Fatalf("expected git-helper to match, got %+v", sel.Selected)
	}
	if sel.Skipped["docker-helper"] != "trigger_not_matched" {
		t.Fatalf("expected docker-helper skipped as trigger_not_matched, got %v", sel.Skipped)
	}
}

func TestEngineSelectSkipsSkillsWithNoTriggers(t *testing.T) {
	e := newTestEngine(t, `{"skill_id": "silent", "triggers": []}`)

	sel := e.Select("anything")
	if len(sel.Selected) != 0 {
		t.Fatalf("expected no match, got %+v", sel.Selected)
	}
	if sel.Skipped["silent"] != "no_triggers" {
		t.Fatalf("expected no_triggers reason, got %v", sel.Skipped)
	}
}

func TestEngineSelectOrdersByPriorityThenSkillID(t *testing.T) {
	e := newTestEngine(t,
		`{"skill_id": "zeta", "triggers": ["go"], "priority": 1}`,
		`{"skill_id": "alpha", "triggers": ["go"], "priority": 5}`,
		`{"skill_id": "beta", "triggers": ["go"], "priority": 5}`,
	)

	sel := e.Select("let's go")
	if len(sel.Selected) != 3 {
		t.Fatalf("expected all three to match, got %+v", sel.Selected)
	}
	got := []string{sel.Selected[0].SkillID, sel.Selected[1].SkillID, sel.Selected[2].SkillID}
	want := []string{"alpha", "beta", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestEngineSelectIsCaseInsensitive(t *testing.T) {
	e := newTestEngine(t, `{"skill_id": "git-helper", "triggers": ["git status"]}`)

	sel := e.Select("GIT STATUS please")
	if len(sel.Selected) != 1 {
		t.Fatalf("expected case-insensitive match, got %+v", sel.Selected)
	}
}

func TestEngineExcludesIneligibleSkillsFromSelection(t *testing.T) {
	e := newTestEngine(t, `{"skill_id": "needs-bin", "triggers": ["run"], "gates": {"bins": ["definitely-not-a-real-binary-xyz"]}}`)

	sel := e.Select("please run this")
	if len(sel.Selected) != 0 {
		t.Fatalf("expected gated skill to be excluded from eligible set, got %+v", sel.Selected)
	}
	reasons := e.IneligibleReasons()
	if _, ok := reasons["needs-bin"]; !ok {
		t.Fatalf("expected an ineligible reason for needs-bin, got %v", reasons)
	}
}

func TestBuildPromptContextJoinsNonEmptyPrompts(t *testing.T) {
	skills := []*SkillSpec{
		{SkillID: "a", SystemPrompt: "do a things"},
		{SkillID: "b", SystemPrompt: ""},
		{SkillID: "c", SystemPrompt: "do c things"},
	}
	got := BuildPromptContext(skills)
	want := "[a] do a things\n[c] do c things"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEngineListErrorsReportsParseFailures(t *testing.T) {
	e := newTestEngine(t, `{"name": "missing id", "triggers": []}`)
	errs := e.ListErrors()
	if len(errs) != 1 {
		t.Fatalf("expected one load error, got %v", errs)
	}
}
