package config

import (
	"fmt"
	"regexp"
	"strings"
)

var prefixPattern = regexp.MustCompile(`^([A-Za-z0-9*?\[\],-]+)(?::([A-Za-z0-9*:]*))?(?:\.([A-Za-z0-9*]+))?$`)

// PrefixParts is the decomposition of a channel prefix pattern.
type PrefixParts struct {
	P         string
	R         string
	Attribute string
}

// SplitPrefix decomposes a prefix such as BL01T-MO-MAP-01:STAGE.VAL into
// its base prefix (3 or 4 hyphen separated segments), the optional colon
// qualifier and the optional dot attribute. Glob metacharacters are allowed
// in every part.
func SplitPrefix(prefix string) (PrefixParts, error) {
	if strings.Contains(prefix, "--") {
		return PrefixParts{}, fmt.Errorf("prefix %q contains a double hyphen", prefix)
	}
	if strings.Contains(prefix, ":.") {
		return PrefixParts{}, fmt.Errorf("prefix %q has a colon followed by a dot", prefix)
	}
	match := prefixPattern.FindStringSubmatch(prefix)
	if match == nil {
		return PrefixParts{}, fmt.Errorf("prefix %q is not a valid PV prefix", prefix)
	}
	segments := strings.Split(match[1], "-")
	if len(segments) < 3 || len(segments) > 4 {
		return PrefixParts{}, fmt.Errorf("prefix %q must have 3 or 4 hyphen separated segments", prefix)
	}
	for _, segment := range segments {
		if segment == "" {
			return PrefixParts{}, fmt.Errorf("prefix %q has an empty segment", prefix)
		}
	}
	return PrefixParts{P: match[1], R: match[2], Attribute: match[3]}, nil
}
