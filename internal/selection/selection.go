package selection

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"raicompanion/internal/classify"
	"raicompanion/internal/domain"
)

// Catalog is the read side of the content library the engine needs.
type Catalog interface {
	Module(id string) (domain.Module, bool)
	Premise(id string) (domain.Premise, bool)
}

const (
	categoryBonus       = 2
	complexSystemBonus  = 1
	complexThreshold    = 4
	highStakesThreshold = 4
	quickModuleLimit    = 6
	FallbackRationale   = "fallback"
)

var (
	systemEntryWords = classify.NewLexicon(
		"power", "control", "controls", "system", "systemic", "government", "geopolitical",
		"strategic", "regime", "elite", "elites", "deep state", "institutions",
	)
	narrativeEntryWords = classify.NewLexicon(
		"because", "therefore", "story", "narrative", "caused", "led to", "resulted in", "as a result",
	)
	factEntryWords = classify.NewLexicon(
		"evidence", "proof", "confirmed", "reported", "reports", "data", "study", "statistics",
	)
)

var categoryModules = map[domain.Category][]string{
	domain.CategoryFactualClaim: {"FL-1", "FL-8", "FL-3"},
	domain.CategoryNarrative:    {"NL-1", "NL-2", "NL-3"},
	domain.CategorySystemClaim:  {"SL-1", "SL-2", "SL-4"},
	domain.CategoryQuestion:     {"FL-1", "NL-1", "CL-2"},
	domain.CategoryMixed:        {"FL-1", "NL-1", "SL-1"},
}

var topicModules = map[domain.Topic][]string{
	domain.TopicGeopolitical:    {"SL-1", "SL-4", "FL-7"},
	domain.TopicInformation:     {"FL-2", "FL-3", "SL-8"},
	domain.TopicPowerGovernance: {"SL-1", "SL-2", "CL-4"},
	domain.TopicEconomy:         {"FL-5", "SL-1", "SL-6"},
	domain.TopicCultural:        {"NL-4", "SL-3", "CL-3"},
}

var (
	complexityModules = []string{"CL-1", "CL-3", "SL-6"}
	highStakesModules = []string{"FL-7", "FL-9", "SL-8", "CL-4"}
)

// levelDefaults fill in a main level missing from the pool.
var levelDefaults = map[domain.Level]string{
	domain.LevelFact:      "FL-1",
	domain.LevelNarrative: "NL-1",
	domain.LevelSystem:    "SL-1",
}

var levelSequence = map[domain.Level][]domain.Level{
	domain.LevelSystem:    {domain.LevelSystem, domain.LevelNarrative, domain.LevelFact},
	domain.LevelNarrative: {domain.LevelNarrative, domain.LevelFact, domain.LevelSystem},
	domain.LevelFact:      {domain.LevelFact, domain.LevelNarrative, domain.LevelSystem},
}

var fallbackModules = []string{domain.InputNormalizationModuleID, "FL-1", "NL-1", "SL-1"}

// Validate checks that every module the selection tables can name exists in
// catalog, with each level default on its own level. A library that fails
// here would push requests into a degraded fallback.
func Validate(catalog Catalog) error {
	refs := map[string]bool{}
	for _, ids := range categoryModules {
		for _, id := range ids {
			refs[id] = true
		}
	}
	for _, ids := range topicModules {
		for _, id := range ids {
			refs[id] = true
		}
	}
	for _, set := range [][]string{complexityModules, highStakesModules, fallbackModules} {
		for _, id := range set {
			refs[id] = true
		}
	}

	var missing []string
	for id := range refs {
		if _, ok := catalog.Module(id); !ok {
			missing = append(missing, id)
		}
	}
	for level, id := range levelDefaults {
		m, ok := catalog.Module(id)
		if !ok {
			if !refs[id] {
				missing = append(missing, id)
			}
			continue
		}
		if m.Level != level {
			return fmt.Errorf("default module %s for level %s is on level %s", id, level, m.Level)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("library is missing modules required for selection: %s", strings.Join(missing, ", "))
	}
	return nil
}

type Engine struct {
	catalog    Catalog
	maxModules int
}

func New(catalog Catalog, maxModules int) *Engine {
	return &Engine{catalog: catalog, maxModules: maxModules}
}

// Select picks modules and premises for one classified input. It never fails:
// any scoring error or panic degrades to the fixed four-module fallback.
func (e *Engine) Select(in domain.ClassifiedInput, mode domain.Mode) (sel domain.Selection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("selection panic recovered: %v", r)
			sel = e.fallback()
		}
	}()

	sel, err := e.selectModules(in, mode)
	if err != nil {
		log.Printf("selection fallback category=%s mode=%s err=%v", in.Category, mode, err)
		return e.fallback()
	}
	return sel
}

func (e *Engine) selectModules(in domain.ClassifiedInput, mode domain.Mode) (domain.Selection, error) {
	entry := EntryLevel(in)

	p := newPool(e.catalog)
	if err := p.add(domain.InputNormalizationModuleID); err != nil {
		return domain.Selection{}, err
	}
	ids, ok := categoryModules[in.Category]
	if !ok {
		return domain.Selection{}, fmt.Errorf("no module table for category %q", in.Category)
	}
	if err := p.add(ids...); err != nil {
		return domain.Selection{}, err
	}
	for _, topic := range in.TopicHints {
		if err := p.add(topicModules[topic]...); err != nil {
			return domain.Selection{}, err
		}
	}
	if in.Complexity >= complexThreshold {
		if err := p.add(complexityModules...); err != nil {
			return domain.Selection{}, err
		}
	}
	if in.EmotionalCharge >= highStakesThreshold {
		if err := p.add(highStakesModules...); err != nil {
			return domain.Selection{}, err
		}
	}

	trimQuick := mode == domain.ModeQuick && in.Simple()
	if !trimQuick {
		for _, level := range domain.MainLevels {
			if !p.hasLevel(level) {
				if err := p.add(levelDefaults[level]); err != nil {
					return domain.Selection{}, err
				}
			}
		}
	} else if len(p.modules) > quickModuleLimit {
		p.modules = p.modules[:quickModuleLimit]
	}
	if e.maxModules > 0 {
		p.capAt(e.maxModules)
	}

	order := executionOrder(p.modules, entry)
	premises := e.resolvePremises(p.modules, order)

	sel := domain.Selection{
		EntryLevel:       entry,
		SelectedModules:  p.modules,
		ResolvedPremises: premises,
		ExecutionOrder:   order,
	}
	sel.Rationale = rationale(in, mode, sel)
	return sel, nil
}

// EntryLevel scores the three main levels by keyword hits and category, and
// breaks ties toward system, then narrative, then fact.
func EntryLevel(in domain.ClassifiedInput) domain.Level {
	scores := map[domain.Level]int{
		domain.LevelSystem:    systemEntryWords.Count(in.CleanedText),
		domain.LevelNarrative: narrativeEntryWords.Count(in.CleanedText),
		domain.LevelFact:      factEntryWords.Count(in.CleanedText),
	}
	switch in.Category {
	case domain.CategoryFactualClaim:
		scores[domain.LevelFact] += categoryBonus
	case domain.CategoryNarrative:
		scores[domain.LevelNarrative] += categoryBonus
	case domain.CategorySystemClaim:
		scores[domain.LevelSystem] += categoryBonus
	}
	if in.Complexity >= complexThreshold {
		scores[domain.LevelSystem] += complexSystemBonus
	}

	best := domain.LevelSystem
	for _, level := range []domain.Level{domain.LevelNarrative, domain.LevelFact} {
		if scores[level] > scores[best] {
			best = level
		}
	}
	return best
}

type pool struct {
	catalog Catalog
	modules []domain.Module
	seen    map[string]bool
}

func newPool(catalog Catalog) *pool {
	return &pool{catalog: catalog, seen: make(map[string]bool)}
}

func (p *pool) add(ids ...string) error {
	for _, id := range ids {
		if p.seen[id] {
			continue
		}
		m, ok := p.catalog.Module(id)
		if !ok {
			return fmt.Errorf("module %s not in library", id)
		}
		p.seen[id] = true
		p.modules = append(p.modules, m)
	}
	return nil
}

func (p *pool) hasLevel(level domain.Level) bool {
	for _, m := range p.modules {
		if m.Level == level {
			return true
		}
	}
	return false
}

// capAt drops modules from the end until at most limit remain, skipping the
// normalization module and the last module of any level.
func (p *pool) capAt(limit int) {
	for len(p.modules) > limit {
		counts := make(map[domain.Level]int)
		for _, m := range p.modules {
			counts[m.Level]++
		}
		removed := false
		for i := len(p.modules) - 1; i >= 0; i-- {
			m := p.modules[i]
			if m.ID == domain.InputNormalizationModuleID {
				continue
			}
			if m.Level != domain.LevelCrossCutting && counts[m.Level] <= 1 {
				continue
			}
			p.modules = append(p.modules[:i], p.modules[i+1:]...)
			removed = true
			break
		}
		if !removed {
			return
		}
	}
}

func executionOrder(modules []domain.Module, entry domain.Level) []string {
	groups := make(map[domain.Level][]domain.Module)
	hasNormalizer := false
	for _, m := range modules {
		if m.ID == domain.InputNormalizationModuleID {
			hasNormalizer = true
			continue
		}
		groups[m.Level] = append(groups[m.Level], m)
	}

	order := make([]string, 0, len(modules))
	if hasNormalizer {
		order = append(order, domain.InputNormalizationModuleID)
	}
	levels := append([]domain.Level{domain.LevelCrossCutting}, levelSequence[entry]...)
	for _, level := range levels {
		group := groups[level]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Ordinal() < group[j].Ordinal()
		})
		for _, m := range group {
			order = append(order, m.ID)
		}
	}
	return order
}

func (e *Engine) resolvePremises(modules []domain.Module, order []string) []domain.Premise {
	byID := make(map[string]domain.Module, len(modules))
	for _, m := range modules {
		byID[m.ID] = m
	}
	var out []domain.Premise
	seen := make(map[string]bool)
	for _, id := range order {
		for _, pid := range byID[id].AnchoredPremiseIDs {
			if seen[pid] {
				continue
			}
			seen[pid] = true
			p, ok := e.catalog.Premise(pid)
			if !ok {
				log.Printf("selection dropping unresolved premise module=%s premise=%s", id, pid)
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) fallback() domain.Selection {
	var modules []domain.Module
	var order []string
	for _, id := range fallbackModules {
		m, ok := e.catalog.Module(id)
		if !ok {
			continue
		}
		modules = append(modules, m)
		order = append(order, id)
	}
	return domain.Selection{
		EntryLevel:       domain.LevelFact,
		SelectedModules:  modules,
		ResolvedPremises: e.resolvePremises(modules, order),
		ExecutionOrder:   order,
		Rationale:        FallbackRationale,
		Fallback:         true,
	}
}

func rationale(in domain.ClassifiedInput, mode domain.Mode, sel domain.Selection) string {
	topics := "none"
	if len(in.TopicHints) > 0 {
		parts := make([]string, len(in.TopicHints))
		for i, t := range in.TopicHints {
			parts[i] = string(t)
		}
		topics = strings.Join(parts, ", ")
	}

	counts := sel.LevelCounts()
	var levelParts []string
	for _, level := range []domain.Level{domain.LevelCrossCutting, domain.LevelFact, domain.LevelNarrative, domain.LevelSystem} {
		if counts[level] > 0 {
			levelParts = append(levelParts, fmt.Sprintf("%s=%d", level.Prefix(), counts[level]))
		}
	}

	return fmt.Sprintf(
		"Input classified as %s with complexity %d/5 and emotional charge %d/5. Detected topics: %s. Entry level: %s. Selected %d modules (%s) for %s analysis. Resolved %d anchored premises.",
		in.Category,
		in.Complexity,
		in.EmotionalCharge,
		topics,
		sel.EntryLevel,
		len(sel.SelectedModules),
		strings.Join(levelParts, ", "),
		mode,
		len(sel.ResolvedPremises),
	)
}
