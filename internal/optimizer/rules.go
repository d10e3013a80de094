// Cache-control rules for SSR responses.
//
// DESIGN: The path-to-policy mapping is an ordered table evaluated in
// fixed precedence order. The first matching rule wins; precedence is
// explicit here instead of being buried in conditional nesting.
package optimizer

import "strings"

// headerPair is one header to merge into the response.
type headerPair struct {
	name  string
	value string
}

// cacheRule maps a path predicate to the headers it selects.
type cacheRule struct {
	name    string
	match   func(path string) bool
	headers []headerPair
}

// ssrCacheRules is evaluated top to bottom; most specific first.
var ssrCacheRules = []cacheRule{
	{
		name:  "dashboard",
		match: func(path string) bool { return strings.HasPrefix(path, "/nextjs/dashboard") },
		headers: []headerPair{
			{"Cache-Control", "public, max-age=60, stale-while-revalidate=300"},
		},
	},
	{
		name:  "rsc",
		match: func(path string) bool { return strings.Contains(path, "/rsc") },
		headers: []headerPair{
			{"Cache-Control", "public, max-age=300, stale-while-revalidate=600"},
		},
	},
	{
		name:  "stream",
		match: func(path string) bool { return strings.Contains(path, "/stream/") },
		headers: []headerPair{
			{"Cache-Control", "no-cache, no-store"},
			{"Connection", "keep-alive"},
		},
	},
}

// matchSSRCacheRule returns the first matching rule, or nil when the
// caller's default cache policy should apply.
func matchSSRCacheRule(path string) *cacheRule {
	for i := range ssrCacheRules {
		if ssrCacheRules[i].match(path) {
			return &ssrCacheRules[i]
		}
	}
	return nil
}
