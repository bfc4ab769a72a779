package builder

import (
	"path/filepath"
	"regexp"

	"github.com/gobwas/glob"

	"github.com/epics-containers/techui-builder/config"
	"github.com/epics-containers/techui-builder/entity"
)

var wildcardPattern = regexp.MustCompile(`[*?\[\]]`)

// IsGlob reports whether a prefix pattern contains wildcard characters.
func IsGlob(pattern string) bool {
	return wildcardPattern.MatchString(pattern)
}

// MatchPrefixes returns the known prefixes selected by pattern. Literal
// patterns select at most themselves; glob patterns are matched against
// the prefixes in lexical order.
func MatchPrefixes(table *entity.Table, pattern string) ([]string, error) {
	if !IsGlob(pattern) {
		if table.Has(pattern) {
			return []string{pattern}, nil
		}
		return nil, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, prefix := range table.SortedPrefixes() {
		if g.Match(prefix) {
			out = append(out, prefix)
		}
	}
	return out, nil
}

// ResolveComponent collects the entities shown on a component's screen:
// the buckets selected by its prefix followed by those selected by each
// extra, each bucket at most once, narrowed by the component filter.
func (b *Builder) ResolveComponent(comp config.Component) []entity.Entity {
	seen := make(map[string]struct{})
	var selected []entity.Entity
	add := func(prefixes []string) {
		for _, prefix := range prefixes {
			if _, ok := seen[prefix]; ok {
				continue
			}
			seen[prefix] = struct{}{}
			selected = append(selected, b.entities.Get(prefix)...)
		}
	}

	prefixes, err := MatchPrefixes(b.entities, comp.Prefix)
	switch {
	case err != nil:
		b.Logger.Error().Err(err).Str("component", comp.Key).
			Msgf("invalid prefix pattern %s for %s", comp.Prefix, comp.Key)
	case len(prefixes) == 0:
		b.Logger.Warn().Str("component", comp.Key).
			Msgf("%s: %s set in %s does not match any P field in the ioc.yaml files in services",
				b.sourceName(), comp.Prefix, comp.Key)
	}
	add(prefixes)

	for _, extra := range comp.Extras {
		prefixes, err := MatchPrefixes(b.entities, extra)
		if err != nil {
			b.Logger.Error().Err(err).Str("component", comp.Key).
				Msgf("invalid extra pattern %s for %s", extra, comp.Key)
			continue
		}
		if len(prefixes) == 0 {
			b.Logger.Error().Str("component", comp.Key).Str("extra", extra).
				Msgf("Extra prefix %s for %s does not exist.", extra, comp.Key)
			continue
		}
		add(prefixes)
	}

	if comp.Filter == "" {
		return selected
	}
	filtered := selected[:0]
	for _, e := range selected {
		ok, err := comp.Accept(e.Env())
		if err != nil {
			b.Logger.Error().Err(err).Str("component", comp.Key).Str("type", e.Type).Msg("filter evaluation failed, dropping entity")
			continue
		}
		if ok {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func (b *Builder) sourceName() string {
	if b.Config == nil || b.Config.Source == "" {
		return "techui.yaml"
	}
	if config.IsRemote(b.Config.Source) {
		return b.Config.Source
	}
	return filepath.Base(b.Config.Source)
}
