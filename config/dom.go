package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Accepted spellings of a beamline domain:
//
//	long:         bl23b
//	short:        b23   (any letter except j)
//	branch short: j23
var (
	longDomPattern        = regexp.MustCompile(`^[a-z]{2}\d{2}[a-z]$`)
	shortDomPattern       = regexp.MustCompile(`^[a-ik-z]\d{2}$`)
	branchShortDomPattern = regexp.MustCompile(`^j\d{2}$`)
	legacyShortDomPattern = regexp.MustCompile(`^([a-z]\d{2})(-\d)?$`)
)

// NormalizeDom converts any accepted domain spelling into the long form.
func NormalizeDom(dom string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(dom))
	switch {
	case longDomPattern.MatchString(v):
		return v, nil
	case shortDomPattern.MatchString(v), branchShortDomPattern.MatchString(v):
		return "bl" + v[1:3] + v[:1], nil
	default:
		return "", fmt.Errorf("invalid dom %q: expected long (bl23b), short (b23) or branch (j23) form", dom)
	}
}

// ShortDom derives the short form from a long domain, e.g. bl23b -> b23.
func ShortDom(long string) string {
	if len(long) != 5 {
		return ""
	}
	return long[4:5] + long[2:4]
}

func (b *Beamline) normalize() error {
	if strings.TrimSpace(b.Dom) != "" {
		long, err := NormalizeDom(b.Dom)
		if err != nil {
			return err
		}
		b.Dom, b.LongDom, b.ShortDom = long, long, ShortDom(long)
		return nil
	}

	long := strings.ToLower(strings.TrimSpace(b.LongDom))
	short := strings.ToLower(strings.TrimSpace(b.ShortDom))
	if !longDomPattern.MatchString(long) {
		return fmt.Errorf("invalid long_dom %q", b.LongDom)
	}
	match := legacyShortDomPattern.FindStringSubmatch(short)
	if match == nil {
		return fmt.Errorf("invalid short_dom %q", b.ShortDom)
	}
	if match[1] != ShortDom(long) {
		return fmt.Errorf("short_dom %q does not correspond to long_dom %q", b.ShortDom, b.LongDom)
	}
	b.Dom, b.LongDom, b.ShortDom = long, long, short
	return nil
}
