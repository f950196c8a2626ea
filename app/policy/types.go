package policy

// SectionPolicy is the static per-section configuration consumed by the
// scorer and the admission logic.
type SectionPolicy struct {
	Section       string         `yaml:"section"`
	Caps          Caps           `yaml:"caps"`
	RetentionDays int            `yaml:"retention_days"`
	HalfLifeHours float64        `yaml:"half_life_hours"`
	MinTrustScore int            `yaml:"min_trust_score"`
	KeywordBoosts []KeywordBoost `yaml:"keyword_boosts"`
	Discovery     DiscoveryQuery `yaml:"discovery"`
}

// Caps bounds how many items a section may admit per run and per window.
type Caps struct {
	PerRun  int `yaml:"per_run"`
	Daily   int `yaml:"daily"`
	Weekly  int `yaml:"weekly"`
	Monthly int `yaml:"monthly"`
}

type KeywordBoost struct {
	Keyword string  `yaml:"keyword"`
	Boost   float64 `yaml:"boost"`
}

// DiscoveryQuery configures the per-section discovery providers. Empty
// fields disable the corresponding provider for the section.
type DiscoveryQuery struct {
	GitHubRepos  []string `yaml:"github_repos"`
	YouTubeQuery string   `yaml:"youtube_query"`
	SocialQuery  string   `yaml:"social_query"`
}

// Table maps canonical section names to their policies.
type Table map[string]*SectionPolicy

// Get returns the policy for a section, or nil if the section is unknown.
func (t Table) Get(section string) *SectionPolicy {
	return t[section]
}

// HasDiscovery reports whether at least one discovery provider is configured.
func (q DiscoveryQuery) HasDiscovery() bool {
	return len(q.GitHubRepos) > 0 || q.YouTubeQuery != "" || q.SocialQuery != ""
}
