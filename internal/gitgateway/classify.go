package gitgateway

import "strings"

// gitMarkers are the substring tests from spec.md §4.5. The bare hits on
// "/HEAD" and "/objects/" are intentionally broad to match legacy client
// behaviour, even though they will also match non-Git paths.
var gitMarkers = []string{
	".git/", "/info/refs", "/HEAD", "/objects/", "/refs/",
	"git-upload-pack", "git-receive-pack",
}

// IsGitRequest classifies an inbound path as belonging to the Git
// smart-HTTP protocol.
func IsGitRequest(path string) bool {
	if strings.HasSuffix(path, ".git") {
		return true
	}
	for _, m := range gitMarkers {
		if strings.Contains(path, m) {
			return true
		}
	}
	return false
}

// PackageName extracts the repository name from a path already classified
// by IsGitRequest: the basename without extension if the path ends with
// ".git", the basename of the prefix before ".git/" if it contains one,
// otherwise the first path segment.
func PackageName(path string) string {
	trimmed := strings.TrimPrefix(path, "/")

	if strings.HasSuffix(trimmed, ".git") {
		trimmed = strings.TrimSuffix(trimmed, ".git")
		if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
			return trimmed[idx+1:]
		}
		return trimmed
	}

	if idx := strings.Index(trimmed, ".git/"); idx >= 0 {
		prefix := trimmed[:idx]
		if slash := strings.LastIndex(prefix, "/"); slash >= 0 {
			prefix = prefix[slash+1:]
		}
		return prefix
	}

	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

// gitFileTail strips the leading repository segment (and, if present, the
// ".git" marker) from path, leaving the relative tail to resolve against
// the repository's Git directory.
func gitFileTail(path string) string {
	trimmed := strings.TrimPrefix(path, "/")

	if idx := strings.Index(trimmed, ".git/"); idx >= 0 {
		return trimmed[idx+len(".git/"):]
	}
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return ""
}
