package domain

import "time"

type AnalysisRecord struct {
	ID             int64
	RequestID      string
	Source         string // "http", "slack" or "cli"
	InputText      string
	Category       Category
	EntryLevel     Level
	Mode           Mode
	ModelAlias     string
	Provider       string
	Model          string
	ModuleIDs      string // comma-separated, in execution order
	ModuleCount    int
	PremiseCount   int
	Status         string // "ok" or an llm error kind
	ErrorMessage   string
	TokensUsed     int64
	LatencyMillis  int64
	SelectionState string // "scored" or "fallback"
	CreatedAt      time.Time
}

type AnalysisStats struct {
	TotalAnalyses  int
	Succeeded      int
	Failed         int
	Fallbacks      int
	AvgLatencyMS   float64
	TotalTokens    int64
	ByModel        map[string]int
	ByMode         map[string]int
	ByCategory     map[string]int
	MostUsedModule string
}
