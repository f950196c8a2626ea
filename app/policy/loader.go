package policy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and validation of section policy files.
type Loader struct {
	sectionsDir string
}

func NewLoader(sectionsDir string) *Loader {
	return &Loader{sectionsDir: sectionsDir}
}

// LoadAll loads all YAML policy files from the sections directory.
func (l *Loader) LoadAll() (Table, error) {
	table := make(Table)

	if _, err := os.Stat(l.sectionsDir); os.IsNotExist(err) {
		return table, nil
	}

	files, err := filepath.Glob(filepath.Join(l.sectionsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YAML files: %w", err)
	}

	ymlFiles, err := filepath.Glob(filepath.Join(l.sectionsDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	files = append(files, ymlFiles...)
	sort.Strings(files)

	for _, file := range files {
		p, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		if err := l.validate(p); err != nil {
			return nil, fmt.Errorf("invalid policy %s: %w", file, err)
		}

		if _, dup := table[p.Section]; dup {
			return nil, fmt.Errorf("duplicate policy for section %q in %s", p.Section, file)
		}

		table[p.Section] = p
		slog.Debug("Loaded section policy", "file", file, "section", p.Section)
	}

	return table, nil
}

// loadFile loads a single YAML policy file.
func (l *Loader) loadFile(path string) (*SectionPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var p SectionPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.setDefaults(&p)

	return &p, nil
}

// setDefaults applies default values to a policy.
func (l *Loader) setDefaults(p *SectionPolicy) {
	if p.Caps.PerRun == 0 {
		p.Caps.PerRun = 1
	}
	if p.Caps.Daily == 0 {
		p.Caps.Daily = 6
	}
	if p.Caps.Weekly == 0 {
		p.Caps.Weekly = 30
	}
	if p.Caps.Monthly == 0 {
		p.Caps.Monthly = 90
	}
	if p.RetentionDays == 0 {
		p.RetentionDays = 45
	}
	if p.HalfLifeHours == 0 {
		p.HalfLifeHours = 48
	}
}

// validate validates a policy.
func (l *Loader) validate(p *SectionPolicy) error {
	if p.Section == "" {
		return fmt.Errorf("section name is required")
	}
	if p.Section != NormalizeSection(p.Section) {
		return fmt.Errorf("section name %q is not canonical (did you mean %q?)",
			p.Section, NormalizeSection(p.Section))
	}
	if p.Caps.Daily < 0 || p.Caps.Weekly < 0 || p.Caps.Monthly < 0 || p.Caps.PerRun < 0 {
		return fmt.Errorf("caps must be non-negative")
	}
	if p.Caps.Daily > p.Caps.Weekly || p.Caps.Weekly > p.Caps.Monthly {
		return fmt.Errorf("caps must be non-decreasing across day/week/month windows")
	}
	if p.RetentionDays < 0 {
		return fmt.Errorf("retention days must be non-negative")
	}
	if p.HalfLifeHours <= 0 {
		return fmt.Errorf("half life hours must be positive")
	}
	if p.MinTrustScore < 0 || p.MinTrustScore > 100 {
		return fmt.Errorf("min trust score must be within [0, 100]")
	}
	for i, kb := range p.KeywordBoosts {
		if kb.Keyword == "" {
			return fmt.Errorf("keyword boost at index %d has empty keyword", i)
		}
		if kb.Boost < 0 {
			return fmt.Errorf("keyword boost at index %d must be non-negative", i)
		}
	}
	return nil
}
