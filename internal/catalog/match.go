package catalog

import "strings"

// Match reports whether a granted code covers a requested code. The granted
// side may carry wildcards ("*.*", "document.*", "*.read"); the requested
// side is always concrete. Matching is evaluated at check time so wildcard
// grants never need to be materialized into concrete rows.
func Match(granted, requested string) bool {
	if granted == requested {
		return true
	}
	gType, gAction, ok := splitLoose(granted)
	if !ok {
		return false
	}
	rType, rAction, ok := splitLoose(requested)
	if !ok {
		return false
	}
	if gType != Wildcard && gType != rType {
		return false
	}
	if gAction != Wildcard && gAction != rAction {
		return false
	}
	return true
}

// MatchAny reports whether any code in the set covers the requested code.
func MatchAny(granted map[string]struct{}, requested string) bool {
	if _, ok := granted[requested]; ok {
		return true
	}
	for code := range granted {
		if Match(code, requested) {
			return true
		}
	}
	return false
}

func splitLoose(code string) (string, string, bool) {
	idx := strings.IndexByte(code, '.')
	if idx <= 0 || idx == len(code)-1 {
		return "", "", false
	}
	return code[:idx], code[idx+1:], true
}
