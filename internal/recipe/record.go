// Package recipe extracts package metadata from a build recipe (a shell
// script declaring pkgname/pkgver/depends/etc variables), per spec.md
// §4.3.
package recipe

import "time"

// Record is the parsed view of a single build recipe.
type Record struct {
	Name           string     `json:"Name"`
	PackageBase    string     `json:"PackageBase"`
	Version        string     `json:"Version"`
	Description    string     `json:"Description"`
	URL            string     `json:"URL"`
	Maintainer     string     `json:"Maintainer"`
	NumVotes       int        `json:"NumVotes"`
	Popularity     float64    `json:"Popularity"`
	OutOfDate      *int64     `json:"OutOfDate"`
	FirstSubmitted int64      `json:"FirstSubmitted"`
	LastModified   int64      `json:"LastModified"`
	License        []string   `json:"License"`
	Depends        []string   `json:"Depends"`
	MakeDepends    []string   `json:"MakeDepends"`
	Conflicts      []string   `json:"Conflicts"`
	Provides       []string   `json:"Provides"`
	Replaces       []string   `json:"Replaces"`
	Keywords       []string   `json:"Keywords"`
}

// newDefaultRecord returns a Record with the defaults spec.md §4.3
// mandates: empty strings default to "", arrays to [], Maintainer to
// "Unknown", Description to "No description available".
func newDefaultRecord(name string, now time.Time) *Record {
	return &Record{
		Name:           name,
		Description:    "No description available",
		Maintainer:     "Unknown",
		License:        []string{},
		Depends:        []string{},
		MakeDepends:    []string{},
		Conflicts:      []string{},
		Provides:       []string{},
		Replaces:       []string{},
		Keywords:       []string{},
		FirstSubmitted: now.Unix(),
		LastModified:   now.Unix(),
	}
}

func versionOf(pkgver, pkgrel string) string {
	if pkgver == "" {
		return "unknown-1"
	}
	if pkgrel == "" {
		pkgrel = "1"
	}
	return pkgver + "-" + pkgrel
}
