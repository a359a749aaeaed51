package ratelimit

import "strings"

// MatchEndpoint returns the first config whose pattern matches method and path,
// or nil. Patterns use the net/http ServeMux form "METHOD /seg/{name}/seg": a
// {name} segment matches any one non-empty segment and segment counts must agree.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	segs := splitPath(path)
	for i := range configs {
		if configs[i].matches(method, segs) {
			return &configs[i]
		}
	}
	return nil
}

func (c *EndpointConfig) matches(method string, segs []string) bool {
	patMethod, patPath, ok := strings.Cut(c.Pattern, " ")
	if !ok || patMethod != method {
		return false
	}
	want := splitPath(patPath)
	if len(want) != len(segs) {
		return false
	}
	for i, w := range want {
		if strings.HasPrefix(w, "{") && strings.HasSuffix(w, "}") {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if w != segs[i] {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}
