package domain

import "fmt"

type Mode string

const (
	ModeQuick  Mode = "quick"
	ModeGuided Mode = "guided"
	ModeExpert Mode = "expert"
)

var Modes = []Mode{ModeQuick, ModeGuided, ModeExpert}

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeQuick, ModeGuided, ModeExpert:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (want quick, guided or expert)", s)
}

type Selection struct {
	EntryLevel       Level
	SelectedModules  []Module
	ResolvedPremises []Premise
	ExecutionOrder   []string
	Rationale        string
	Fallback         bool
}

func (s Selection) Module(id string) (Module, bool) {
	for _, m := range s.SelectedModules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

func (s Selection) Premise(id string) (Premise, bool) {
	for _, p := range s.ResolvedPremises {
		if p.ID == id {
			return p, true
		}
	}
	return Premise{}, false
}

// LevelCounts reports how many selected modules belong to each level.
func (s Selection) LevelCounts() map[Level]int {
	out := make(map[Level]int)
	for _, m := range s.SelectedModules {
		out[m.Level]++
	}
	return out
}
