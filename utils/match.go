package utils

import "strings"

// MatchPath reports whether a resource root path matches pattern.
// Patterns may contain:
//   - '*' matching any run of characters within one path segment, or
//     everything that follows when it is the last pattern character;
//   - ':name' matching exactly one path segment;
//   - a trailing "/*" matching the folder itself and its whole subtree.
func MatchPath(path, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if !strings.ContainsAny(prefix, "*:") {
			return path == prefix || strings.HasPrefix(path, prefix+"/")
		}
	}
	return matchSegments(path, pattern)
}

// MatchAnyPath reports whether path matches at least one pattern. An empty
// pattern list matches everything.
func MatchAnyPath(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if MatchPath(path, p) {
			return true
		}
	}
	return false
}

func matchSegments(value, pattern string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			if len(pattern) == 1 {
				return true
			}
			// '*' never crosses a segment boundary
			rest := pattern[1:]
			for i := 0; i <= len(value); i++ {
				if matchSegments(value[i:], rest) {
					return true
				}
				if i < len(value) && value[i] == '/' {
					break
				}
			}
			return false
		case ':':
			pEnd := strings.IndexByte(pattern, '/')
			if pEnd < 0 {
				pEnd = len(pattern)
			}
			vEnd := strings.IndexByte(value, '/')
			if vEnd < 0 {
				vEnd = len(value)
			}
			if vEnd == 0 {
				return false
			}
			value, pattern = value[vEnd:], pattern[pEnd:]
		default:
			if len(value) == 0 || value[0] != pattern[0] {
				return false
			}
			value, pattern = value[1:], pattern[1:]
		}
	}
	return len(value) == 0
}
