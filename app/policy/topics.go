package policy

import "strings"

// MaxTopics bounds the ordered topic set stored on an item.
const MaxTopics = 2

// topicAliases maps raw feed category strings to canonical topic codes.
var topicAliases = map[string]string{
	"ai":                      "ai",
	"artificial intelligence": "ai",
	"machine learning":        "ai",
	"security":                "security",
	"cybersecurity":           "security",
	"infosec":                 "security",
	"privacy":                 "security",
	"climate":                 "climate",
	"environment":             "climate",
	"energy":                  "climate",
	"economy":                 "economy",
	"markets":                 "economy",
	"stocks":                  "economy",
	"inflation":               "economy",
	"politics":                "politics",
	"election":                "politics",
	"government":              "politics",
	"space":                   "space",
	"astronomy":               "space",
	"nasa":                    "space",
	"health":                  "health",
	"medicine":                "health",
	"science":                 "science",
	"physics":                 "science",
	"biology":                 "science",
	"culture":                 "culture",
	"arts":                    "culture",
	"film":                    "culture",
	"music":                   "culture",
	"sports":                  "sports",
	"football":                "sports",
	"software":                "software",
	"programming":             "software",
	"open source":             "software",
}

// MapTopics converts raw feed categories into an ordered set of at most
// MaxTopics canonical topic codes, preserving first-seen order.
func MapTopics(categories []string) []string {
	var topics []string
	seen := make(map[string]bool)

	for _, raw := range categories {
		code, ok := topicAliases[strings.ToLower(strings.TrimSpace(raw))]
		if !ok || seen[code] {
			continue
		}
		seen[code] = true
		topics = append(topics, code)
		if len(topics) == MaxTopics {
			break
		}
	}

	return topics
}
