package filter

import (
	"reflect"
	"testing"
)

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		path string
		want bool
	}{
		{"exact match", Rule{Mode: ModeExact, Pattern: "/a/b.txt"}, "/a/b.txt", true},
		{"exact case-insensitive", Rule{Mode: ModeExact, Pattern: "/A/B.TXT"}, "/a/b.txt", true},
		{"exact mismatch", Rule{Mode: ModeExact, Pattern: "/a/b.txt"}, "/a/c.txt", false},
		{"start match", Rule{Mode: ModeStart, Pattern: "/system"}, "/System/Volumes/x", true},
		{"end match", Rule{Mode: ModeEnd, Pattern: ".exe"}, "/a/b/virus.EXE", true},
		{"contain match", Rule{Mode: ModeContain, Pattern: ".git"}, "/proj/.git/config", true},
		{"contain mismatch", Rule{Mode: ModeContain, Pattern: ".git"}, "/proj/src/main.go", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Matches(tt.path); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSetClassifyFirstMatchWins(t *testing.T) {
	s := Set{
		{Mode: ModeEnd, Pattern: ".tmp", Action: ActionReject},
		{Mode: ModeStart, Pattern: "/.git", Action: ActionFilter},
	}
	if got := s.Classify("/proj/file.tmp"); got != OutcomeRejected {
		t.Errorf("Classify(.tmp) = %v, want OutcomeRejected", got)
	}
	if got := s.Classify("/.git/config"); got != OutcomeFiltered {
		t.Errorf("Classify(.git) = %v, want OutcomeFiltered", got)
	}
	if got := s.Classify("/proj/main.go"); got != OutcomeAccept {
		t.Errorf("Classify(main.go) = %v, want OutcomeAccept", got)
	}
}

func TestSetPartition(t *testing.T) {
	s := Set{
		{Mode: ModeEnd, Pattern: ".tmp", Action: ActionReject},
		{Mode: ModeStart, Pattern: "/.git", Action: ActionFilter},
	}
	paths := []string{"/a.go", "/b.tmp", "/.git/config", "/c.go"}
	accepted, filtered, rejected := s.Partition(paths)

	if want := []string{"/a.go", "/c.go"}; !reflect.DeepEqual(accepted, want) {
		t.Errorf("accepted = %v, want %v", accepted, want)
	}
	if want := []string{"/.git/config"}; !reflect.DeepEqual(filtered, want) {
		t.Errorf("filtered = %v, want %v", filtered, want)
	}
	if want := []string{"/b.tmp"}; !reflect.DeepEqual(rejected, want) {
		t.Errorf("rejected = %v, want %v", rejected, want)
	}
}
