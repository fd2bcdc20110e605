package grammar

import "encoding/xml"

// WildcardMatches reports whether name is admitted by an Any particle's
// namespace constraint, per the XML Schema wildcard namespace
// vocabulary: "##any" and the empty string admit everything, "##local"
// admits only unqualified names, and anything else is a space-separated
// list of literal namespace URIs (optionally containing "##local").
//
// "##other" and "##targetNamespace" need the declaring schema's target
// namespace to evaluate precisely; this package has no notion of a
// schema document, so both are treated as "##any". Callers that can
// supply the owning target namespace (the schema package can) should
// special-case those two tokens themselves before falling back here.
func WildcardMatches(namespace string, name xml.Name) bool {
	switch namespace {
	case "", "##any", "##other", "##targetNamespace":
		return true
	case "##local":
		return name.Space == ""
	default:
		start := -1
		for i := 0; i <= len(namespace); i++ {
			if i < len(namespace) && namespace[i] != ' ' {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				tok := namespace[start:i]
				if tok == "##local" && name.Space == "" {
					return true
				}
				if tok == name.Space {
					return true
				}
				start = -1
			}
		}
		return false
	}
}
