// Package filter implements the filename-matching rules a transfer's file
// selection passes through before anything is copied (spec §4.6): each
// rule matches a filename by exact/prefix/suffix/substring comparison,
// case-insensitively, against the file's full path.
package filter

import "strings"

// Mode is how a Rule compares its pattern against a path.
type Mode int

const (
	ModeExact Mode = iota
	ModeStart
	ModeEnd
	ModeContain
)

// Rule is one filtering criterion. Action decides what happens to a path
// that matches: Reject removes it from the transfer entirely, Filter
// removes it but records it separately from a rejection (spec §4.6/§4.8:
// filtered_files and rejected_files are reported as distinct, mutually
// exclusive lists).
type Action int

const (
	ActionReject Action = iota
	ActionFilter
)

type Rule struct {
	Mode    Mode
	Pattern string
	Action  Action
}

// Matches reports whether path satisfies r, comparing case-insensitively
// against the full path as spec §4.6 requires (not just the base name,
// so a rule can target a whole directory by prefix).
func (r Rule) Matches(path string) bool {
	p := strings.ToLower(path)
	pat := strings.ToLower(r.Pattern)
	switch r.Mode {
	case ModeExact:
		return p == pat
	case ModeStart:
		return strings.HasPrefix(p, pat)
	case ModeEnd:
		return strings.HasSuffix(p, pat)
	case ModeContain:
		return strings.Contains(p, pat)
	default:
		return false
	}
}

// Outcome classifies a path against an ordered list of rules: the first
// matching rule wins, and a path matching none is accepted.
type Outcome int

const (
	OutcomeAccept Outcome = iota
	OutcomeFiltered
	OutcomeRejected
)

// Set is an ordered list of rules evaluated top to bottom.
type Set []Rule

// Classify returns how path should be handled given s.
func (s Set) Classify(path string) Outcome {
	for _, r := range s {
		if r.Matches(path) {
			if r.Action == ActionReject {
				return OutcomeRejected
			}
			return OutcomeFiltered
		}
	}
	return OutcomeAccept
}

// Partition classifies every path in paths and splits them into the three
// mutually exclusive lists the transfer report carries (spec §4.8).
func (s Set) Partition(paths []string) (accepted, filtered, rejected []string) {
	for _, p := range paths {
		switch s.Classify(p) {
		case OutcomeFiltered:
			filtered = append(filtered, p)
		case OutcomeRejected:
			rejected = append(rejected, p)
		default:
			accepted = append(accepted, p)
		}
	}
	return accepted, filtered, rejected
}
