package content

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"raicompanion/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed library.yaml
var embeddedLibrary []byte

type libraryFile struct {
	Version    int             `yaml:"version"`
	Dimensions []dimensionFile `yaml:"dimensions"`
	Levels     []levelFile     `yaml:"levels"`
}

type dimensionFile struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Premises    []premiseFile `yaml:"premises"`
}

type premiseFile struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

type levelFile struct {
	Level   string       `yaml:"level"`
	Name    string       `yaml:"name"`
	Modules []moduleFile `yaml:"modules"`
}

type moduleFile struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Purpose       string   `yaml:"purpose"`
	CoreQuestions []string `yaml:"core_questions"`
	Anchors       []string `yaml:"anchors"`
	Guidance      []string `yaml:"guidance"`
}

// Library is the validated, read-only content set. All accessors return
// copies or values, so a Library can be shared across goroutines.
type Library struct {
	version    int
	dimensions []domain.Dimension
	premises   map[string]domain.Premise
	modules    map[string]domain.Module
	levelNames map[domain.Level]string

	premiseOrder []string
	moduleOrder  []string
}

func Default() (*Library, error) {
	lib, err := Load(embeddedLibrary)
	if err != nil {
		return nil, fmt.Errorf("embedded library: %w", err)
	}
	return lib, nil
}

func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read library: %w", err)
	}
	lib, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("library %s: %w", path, err)
	}
	return lib, nil
}

// Load parses and validates a library document. Any broken reference or
// misplaced id fails the whole load.
func Load(data []byte) (*Library, error) {
	var f libraryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse library yaml: %w", err)
	}

	lib := &Library{
		version:    f.Version,
		premises:   make(map[string]domain.Premise),
		modules:    make(map[string]domain.Module),
		levelNames: make(map[domain.Level]string),
	}

	seenDims := make(map[string]bool)
	for _, d := range f.Dimensions {
		if d.ID == "" {
			return nil, fmt.Errorf("dimension with empty id")
		}
		if seenDims[d.ID] {
			return nil, fmt.Errorf("duplicate dimension %s", d.ID)
		}
		seenDims[d.ID] = true
		lib.dimensions = append(lib.dimensions, domain.Dimension{
			ID:          d.ID,
			Name:        strings.TrimSpace(d.Name),
			Description: strings.TrimSpace(d.Description),
		})
		for _, p := range d.Premises {
			if !strings.HasPrefix(p.ID, d.ID+".") {
				return nil, fmt.Errorf("premise %q does not belong to dimension %s", p.ID, d.ID)
			}
			if _, dup := lib.premises[p.ID]; dup {
				return nil, fmt.Errorf("duplicate premise %s", p.ID)
			}
			if strings.TrimSpace(p.Title) == "" {
				return nil, fmt.Errorf("premise %s has no title", p.ID)
			}
			lib.premises[p.ID] = domain.Premise{
				ID:        p.ID,
				Dimension: d.ID,
				Title:     strings.TrimSpace(p.Title),
				Content:   strings.TrimSpace(p.Content),
			}
			lib.premiseOrder = append(lib.premiseOrder, p.ID)
		}
	}

	for _, lf := range f.Levels {
		level := domain.Level(lf.Level)
		if !level.Valid() {
			return nil, fmt.Errorf("unknown level %q", lf.Level)
		}
		if _, dup := lib.levelNames[level]; dup {
			return nil, fmt.Errorf("level %s declared twice", level)
		}
		lib.levelNames[level] = lf.Name
		for _, m := range lf.Modules {
			if err := checkModuleID(m.ID, level); err != nil {
				return nil, err
			}
			if _, dup := lib.modules[m.ID]; dup {
				return nil, fmt.Errorf("duplicate module %s", m.ID)
			}
			if strings.TrimSpace(m.Name) == "" {
				return nil, fmt.Errorf("module %s has no name", m.ID)
			}
			for _, anchor := range m.Anchors {
				if _, ok := lib.premises[anchor]; !ok {
					return nil, fmt.Errorf("module %s anchors unknown premise %s", m.ID, anchor)
				}
			}
			lib.modules[m.ID] = domain.Module{
				ID:                 m.ID,
				Level:              level,
				Name:               strings.TrimSpace(m.Name),
				Purpose:            strings.TrimSpace(m.Purpose),
				CoreQuestions:      m.CoreQuestions,
				AnchoredPremiseIDs: m.Anchors,
				Guidance:           m.Guidance,
			}
			lib.moduleOrder = append(lib.moduleOrder, m.ID)
		}
	}

	if _, ok := lib.modules[domain.InputNormalizationModuleID]; !ok {
		return nil, fmt.Errorf("library has no %s module", domain.InputNormalizationModuleID)
	}
	for _, level := range domain.MainLevels {
		if _, ok := lib.levelNames[level]; !ok {
			return nil, fmt.Errorf("library has no %s level", level)
		}
	}

	sort.SliceStable(lib.moduleOrder, func(i, j int) bool {
		a, b := lib.modules[lib.moduleOrder[i]], lib.modules[lib.moduleOrder[j]]
		if a.Level != b.Level {
			return levelRank(a.Level) < levelRank(b.Level)
		}
		return a.Ordinal() < b.Ordinal()
	})

	return lib, nil
}

func checkModuleID(id string, level domain.Level) error {
	prefix, num, ok := strings.Cut(id, "-")
	if !ok || num == "" {
		return fmt.Errorf("malformed module id %q", id)
	}
	if prefix != level.Prefix() {
		return fmt.Errorf("module %s listed under level %s (want prefix %s)", id, level, level.Prefix())
	}
	if domain.IDOrdinal(id) < 0 {
		return fmt.Errorf("module id %q has no numeric suffix", id)
	}
	return nil
}

func levelRank(l domain.Level) int {
	switch l {
	case domain.LevelCrossCutting:
		return 0
	case domain.LevelFact:
		return 1
	case domain.LevelNarrative:
		return 2
	case domain.LevelSystem:
		return 3
	}
	return 4
}

func (l *Library) Version() int { return l.version }

func (l *Library) Module(id string) (domain.Module, bool) {
	m, ok := l.modules[id]
	return m, ok
}

func (l *Library) Premise(id string) (domain.Premise, bool) {
	p, ok := l.premises[id]
	return p, ok
}

// Modules lists every module ordered by level, then by numeric suffix.
func (l *Library) Modules() []domain.Module {
	out := make([]domain.Module, 0, len(l.moduleOrder))
	for _, id := range l.moduleOrder {
		out = append(out, l.modules[id])
	}
	return out
}

// Premises lists every premise in document order.
func (l *Library) Premises() []domain.Premise {
	out := make([]domain.Premise, 0, len(l.premiseOrder))
	for _, id := range l.premiseOrder {
		out = append(out, l.premises[id])
	}
	return out
}

func (l *Library) Dimensions() []domain.Dimension {
	out := make([]domain.Dimension, len(l.dimensions))
	copy(out, l.dimensions)
	return out
}

func (l *Library) LevelName(level domain.Level) string {
	return l.levelNames[level]
}

func (l *Library) ModuleCount() int  { return len(l.modules) }
func (l *Library) PremiseCount() int { return len(l.premises) }
