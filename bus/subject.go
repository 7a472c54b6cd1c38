package bus

import "strings"

// Subject returns the canonical subject on which events of one aggregate
// type within one tenant are published.
func Subject(tenantID, aggregateType string) string {
	return "events." + tenantID + "." + aggregateType
}

// SubjectTenant returns the tenant token of a canonical subject.
//
// It returns an empty string if the subject is not tenant-scoped.
func SubjectTenant(subject string) string {
	tokens := strings.Split(subject, ".")
	if len(tokens) < 3 || tokens[0] != "events" {
		return ""
	}

	return tokens[1]
}

// MatchSubject returns true if subject matches pattern.
//
// Patterns are dot-separated token lists. A "*" token matches exactly one
// subject token. A trailing ">" token matches one or more remaining tokens.
func MatchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, p := range pt {
		if p == ">" {
			// ">" must consume at least one token.
			return i == len(pt)-1 && len(st) > i
		}

		if i >= len(st) {
			return false
		}

		if p != "*" && p != st[i] {
			return false
		}
	}

	return len(pt) == len(st)
}

// validPattern returns true if pattern is a well-formed subject pattern.
func validPattern(pattern string) bool {
	if pattern == "" {
		return false
	}

	tokens := strings.Split(pattern, ".")

	for i, t := range tokens {
		if t == "" {
			return false
		}

		if t == ">" && i != len(tokens)-1 {
			return false
		}
	}

	return true
}
