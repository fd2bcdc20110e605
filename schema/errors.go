package schema

// SchemaLoadError reports a fault while building the grammar model from
// a schema document. In strict (validating) mode this is fatal; in lax
// mode the offending declaration is dropped and the error is recorded
// as a diagnostic instead of aborting the load.
type SchemaLoadError struct {
	Message string
}

func (e *SchemaLoadError) Error() string { return "schema: " + e.Message }

// UnresolvedReference reports a name that never resolved within the
// grammar or one of its imports once loading finished. Forward
// references within a single schema document are always tolerated and
// resolved at end of document; only a reference still dangling after
// that drain produces this error, and even then it is fatal only when
// the grammar is in validating mode (see Grammar.Validating).
type UnresolvedReference struct {
	Kind string // "type", "group", "attributeGroup", "element"
	Name string
}

func (e *UnresolvedReference) Error() string {
	return "schema: unresolved " + e.Kind + " reference: " + e.Name
}
