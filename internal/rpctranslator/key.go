package rpctranslator

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// CanonicalKey implements spec.md §3's canonical-key law: for any two
// permutations of arg[] in an info/multiinfo query, the key is identical.
func CanonicalKey(path, rawQuery string, query url.Values) string {
	switch query.Get("type") {
	case "search":
		return path + "?type=search&arg=" + query.Get("arg")
	case "info", "multiinfo":
		queryType := query.Get("type")
		names := append([]string(nil), query["arg[]"]...)
		sort.Strings(names)
		return path + "?type=" + queryType + "&packages=" + strings.Join(names, ",")
	default:
		return path + "?" + rawQuery
	}
}

func versionParam(query url.Values) int {
	v, err := strconv.Atoi(query.Get("v"))
	if err != nil {
		return 5
	}
	return v
}
