package webhook

import "strings"

// PatternMatches reports whether pattern matches eventType under spec
// §4.7's three pattern forms: exact ("deployment.applied"),
// namespace-wildcard ("deployment.*"), and global ("*").
func PatternMatches(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}
	if namespace, ok := strings.CutSuffix(pattern, ".*"); ok {
		return eventType == namespace || strings.HasPrefix(eventType, namespace+".")
	}
	return pattern == eventType
}

// AnyPatternMatches reports whether any pattern in patterns matches
// eventType.
func AnyPatternMatches(patterns []string, eventType string) bool {
	for _, p := range patterns {
		if PatternMatches(p, eventType) {
			return true
		}
	}
	return false
}
