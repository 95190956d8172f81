package domain

import (
	"strconv"
	"strings"
)

type Level string

const (
	LevelCrossCutting Level = "cross-cutting"
	LevelFact         Level = "fact"
	LevelNarrative    Level = "narrative"
	LevelSystem       Level = "system"
)

// MainLevels are the three analytical levels every selection tries to cover.
var MainLevels = []Level{LevelFact, LevelNarrative, LevelSystem}

var levelPrefixes = map[Level]string{
	LevelCrossCutting: "CL",
	LevelFact:         "FL",
	LevelNarrative:    "NL",
	LevelSystem:       "SL",
}

func (l Level) Prefix() string {
	return levelPrefixes[l]
}

func (l Level) Valid() bool {
	_, ok := levelPrefixes[l]
	return ok
}

// LevelForPrefix maps a module id prefix such as "FL" back to its level.
func LevelForPrefix(prefix string) (Level, bool) {
	for level, p := range levelPrefixes {
		if p == prefix {
			return level, true
		}
	}
	return "", false
}

type Dimension struct {
	ID          string
	Name        string
	Description string
}

type Premise struct {
	ID        string
	Dimension string
	Title     string
	Content   string
}

type Module struct {
	ID                 string
	Level              Level
	Name               string
	Purpose            string
	CoreQuestions      []string
	AnchoredPremiseIDs []string
	Guidance           []string
}

// Ordinal returns the numeric suffix of the module id ("FL-9" -> 9), or -1
// when the id carries no number.
func (m Module) Ordinal() int {
	return IDOrdinal(m.ID)
}

func IDOrdinal(id string) int {
	idx := strings.LastIndex(id, "-")
	if idx < 0 {
		return -1
	}
	n, err := strconv.Atoi(id[idx+1:])
	if err != nil {
		return -1
	}
	return n
}

// InputNormalizationModuleID is always part of a selection and always runs first.
const InputNormalizationModuleID = "CL-0"
