package recipe

import (
	"strings"
	"time"
)

// targetKeys are the variable names extracted from a recipe. Order doesn't
// matter; scalarKeys vs arrayKeys determines how each value is interpreted.
var scalarKeys = []string{"pkgbase", "pkgver", "pkgrel", "pkgdesc", "url", "maintainer"}
var arrayKeys = []string{"license", "depends", "makedepends", "conflicts", "provides", "replaces", "keywords"}

// lineScan implements spec.md §4.3's strategy 2: split on newlines, take
// the first line beginning "key=" for each target key, strip quotes, and
// split array values (those starting "(" and ending ")") on whitespace.
func lineScan(name string, data []byte, now time.Time) *Record {
	rec := newDefaultRecord(name, now)

	values := make(map[string]string)
	for _, key := range append(append([]string{}, scalarKeys...), arrayKeys...) {
		if v, ok := findFirstValue(data, key); ok {
			values[key] = v
		}
	}

	pkgbase := values["pkgbase"]
	if pkgbase == "" {
		pkgbase = name
	}
	rec.PackageBase = pkgbase
	rec.Version = versionOf(values["pkgver"], values["pkgrel"])

	if v, ok := values["pkgdesc"]; ok && v != "" {
		rec.Description = stripQuotes(v)
	}
	if v, ok := values["url"]; ok && v != "" {
		rec.URL = stripQuotes(v)
	}
	if v, ok := values["maintainer"]; ok && v != "" {
		rec.Maintainer = stripQuotes(v)
	}

	rec.License = arrayValue(values["license"])
	rec.Depends = arrayValue(values["depends"])
	rec.MakeDepends = arrayValue(values["makedepends"])
	rec.Conflicts = arrayValue(values["conflicts"])
	rec.Provides = arrayValue(values["provides"])
	rec.Replaces = arrayValue(values["replaces"])
	rec.Keywords = arrayValue(values["keywords"])

	return rec
}

// findFirstValue finds the first line beginning "key=" and returns the
// remainder, joining continuation lines until the parens balance for
// array values.
func findFirstValue(data []byte, key string) (string, bool) {
	lines := strings.Split(string(data), "\n")
	prefix := key + "="

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, prefix) {
			continue
		}
		value := strings.TrimPrefix(trimmed, prefix)

		if strings.HasPrefix(value, "(") && !strings.Contains(value, ")") {
			for j := i + 1; j < len(lines); j++ {
				value += "\n" + lines[j]
				if strings.Contains(lines[j], ")") {
					break
				}
			}
		}

		return value, true
	}
	return "", false
}

func arrayValue(raw string) []string {
	if raw == "" {
		return []string{}
	}
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "(") {
		if v := stripQuotes(trimmed); v != "" {
			return []string{v}
		}
		return []string{}
	}

	trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "("), ")")
	fields := strings.Fields(trimmed)

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := stripQuotes(f); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return s
}
