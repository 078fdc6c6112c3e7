package guid

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/desertthunder/plexsync/internal/models"
)

// pattern recognizes one raw identifier shape.
type pattern struct {
	name      string
	re        *regexp.Regexp // submatch 1 is the provider name, submatch 2 the raw id
	providers map[string]models.Provider
}

var patterns = []pattern{
	{
		name: "agent",
		re:   regexp.MustCompile(`^(?:[A-Za-z0-9_-]+\.)+(imdb|thetvdb|themoviedb)://([^?/]+)`),
		providers: map[string]models.Provider{
			"imdb":       models.IMDB,
			"thetvdb":    models.TVDB,
			"themoviedb": models.TMDB,
		},
	},
	{
		name: "short",
		re:   regexp.MustCompile(`^(imdb|tvdb|tmdb)://([^?/]+)`),
		providers: map[string]models.Provider{
			"imdb": models.IMDB,
			"tvdb": models.TVDB,
			"tmdb": models.TMDB,
		},
	},
}

// Parse resolves a single raw identifier string.
//
// The returned value is normalized. ok is false for unrecognized shapes and for ids that
// normalize to nothing.
func Parse(raw string) (id models.CanonicalID, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return id, false
	}

	for _, p := range patterns {
		m := p.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		provider := p.providers[m[1]]
		value := Normalize(provider, m[2])
		if value == "" {
			return id, false
		}
		return models.CanonicalID{Provider: provider, Value: value}, true
	}
	return id, false
}

// Extract merges every recognized identifier in raws into one set, later entries overwriting
// earlier ones for the same provider. It never fails; unusable input yields an empty set.
func Extract(raws ...string) models.IDSet {
	ids := make(models.IDSet)
	for _, raw := range raws {
		if id, ok := Parse(raw); ok {
			ids[id.Provider] = id.Value
		}
	}
	return ids
}

// FromTracker builds a normalized set from Trakt's id block, where numeric ids are zero when absent.
func FromTracker(imdb string, tvdb, tmdb int) models.IDSet {
	ids := make(models.IDSet)
	if v := NormalizeIMDB(imdb); v != "" {
		ids[models.IMDB] = v
	}
	if tvdb > 0 {
		ids[models.TVDB] = strconv.Itoa(tvdb)
	}
	if tmdb > 0 {
		ids[models.TMDB] = strconv.Itoa(tmdb)
	}
	return ids
}

// Normalize applies the provider's normalization rule to value.
func Normalize(p models.Provider, value string) string {
	switch p {
	case models.IMDB:
		return NormalizeIMDB(value)
	case models.TVDB, models.TMDB:
		return digitsOnly(value)
	default:
		return strings.TrimSpace(value)
	}
}

// NormalizeIMDB trims value and enforces a lowercase "tt" prefix. A bare prefix normalizes to
// nothing.
func NormalizeIMDB(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 2 && strings.EqualFold(value[:2], "tt") {
		value = value[2:]
	}
	if value == "" {
		return ""
	}
	return "tt" + value
}

// NormalizeTVDB keeps only the digits of value.
func NormalizeTVDB(value string) string { return digitsOnly(value) }

// NormalizeTMDB keeps only the digits of value.
func NormalizeTMDB(value string) string { return digitsOnly(value) }

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
