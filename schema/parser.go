package schema

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/xmlkit-go/xmlkit/grammar"
	"github.com/xmlkit-go/xmlkit/qname"
	"github.com/xmlkit-go/xmlkit/scanner"
)

// Resolver looks up a named group or attribute group defined in another
// schema document already loaded into the same composite grammar. The
// parser consults it only after its own deferred-reference queue fails
// to resolve a forward reference locally.
type Resolver func(name xml.Name) (interface{}, bool)

// frame is one open schema-document element on the handler's stack. The
// handler is a pure bottom-up tree builder: a frame accumulates state
// while its children are visited, and folds itself into its parent's
// state when its EndElement fires, exactly the way dtd's recursive-
// descent content-spec parser builds particle trees, just driven by SAX
// events instead of direct string indexing.
type frame struct {
	tag  string
	name xml.Name // for named top-level or locally-named constructs

	min, max int // occurrence bounds parsed from minOccurs/maxOccurs

	// content-model construction (sequence/choice/all/group/any/element-ref)
	seqChildren []grammar.Particle
	allChildren []grammar.ElementParticle

	ct  *ComplexType
	st  *SimpleType
	ed  *ElementDecl
	ag  *AttributeGroup
	grp *Group

	derivation Derivation
	baseName   xml.Name

	isRef bool // element frame reached via a ref="..." attribute rather than name
}

type pendingAttrGroupRef struct {
	owner *ComplexType
	name  xml.Name
}

// Handler is a scanner.ContentHandler that builds a Grammar from the SAX
// events of one schema document. It tolerates and skips elements outside
// the XML Schema namespace (annotation/documentation content, foreign
// attributes) rather than rejecting them.
type Handler struct {
	scanner.BaseHandler

	g   *Grammar
	lax bool

	scopes   []qname.Scope
	stack    []*frame
	targetNS string
	elemQual bool
	attrQual bool

	pendingAttrGroups []pendingAttrGroupRef

	ResolveGroup     Resolver
	ResolveAttrGroup Resolver

	diags []error
}

// NewHandler creates a Handler that populates g. When lax is true,
// malformed declarations are recorded as diagnostics (see Diagnostics)
// instead of aborting the load.
func NewHandler(g *Grammar, lax bool) *Handler {
	return &Handler{g: g, lax: lax, scopes: []qname.Scope{{}}}
}

// Diagnostics returns the non-fatal errors accumulated while parsing in
// lax mode.
func (h *Handler) Diagnostics() []error { return h.diags }

func (h *Handler) fail(msg string) error {
	err := &SchemaLoadError{Message: msg}
	if h.lax {
		h.diags = append(h.diags, err)
		return nil
	}
	return err
}

func (h *Handler) scope() qname.Scope { return h.scopes[len(h.scopes)-1] }

func (h *Handler) top() *frame {
	if len(h.stack) == 0 {
		return nil
	}
	return h.stack[len(h.stack)-1]
}

func toXMLAttrs(attrs []scanner.Attr) []xml.Attr {
	out := make([]xml.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = xml.Attr{Name: a.Name, Value: a.Value}
	}
	return out
}

func attrValue(attrs []scanner.Attr, local string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func localTag(scope qname.Scope, name xml.Name) string {
	qn := name.Local
	if name.Space != "" {
		qn = name.Space + ":" + name.Local
	}
	resolved, _ := scope.Resolve(qn, "")
	if resolved.Space != "" && resolved.Space != NS {
		return "" // foreign element, e.g. xs:appinfo content or a vendor extension
	}
	return name.Local
}

func (h *Handler) StartElement(name xml.Name, attrs []scanner.Attr) error {
	scope := h.scope().Push(toXMLAttrs(attrs))
	h.scopes = append(h.scopes, scope)

	tag := localTag(scope, name)
	switch tag {
	case "schema":
		if ns, ok := attrValue(attrs, "targetNamespace"); ok {
			h.targetNS = ns
		}
		if v, ok := attrValue(attrs, "elementFormDefault"); ok {
			h.elemQual = v == "qualified"
		}
		if v, ok := attrValue(attrs, "attributeFormDefault"); ok {
			h.attrQual = v == "qualified"
		}
		h.push(&frame{tag: tag})
		return nil
	case "import", "include", "redefine", "annotation", "documentation", "appinfo", "notation", "unique", "key", "keyref", "selector", "field":
		// Cross-document composition, documentation, and identity
		// constraints are outside this package's grammar model; the
		// import/include schemaLocation graph is handled by the loader
		// that drives multiple Handlers, not by this event stream.
		h.push(&frame{tag: "_skip"})
		return nil
	case "element":
		return h.startElementDecl(attrs)
	case "complexType":
		return h.startComplexType(attrs)
	case "simpleType":
		return h.startSimpleType(attrs)
	case "simpleContent":
		h.push(&frame{tag: tag})
		return nil
	case "complexContent":
		h.push(&frame{tag: tag})
		return nil
	case "extension":
		return h.startDerivation(attrs, Extension)
	case "restriction":
		return h.startDerivation(attrs, Restriction)
	case "sequence":
		return h.startGroupParticle(attrs, tag)
	case "choice":
		return h.startGroupParticle(attrs, tag)
	case "all":
		return h.startGroupParticle(attrs, tag)
	case "group":
		return h.startGroupRef(attrs)
	case "any":
		return h.startAny(attrs)
	case "attribute":
		return h.startAttribute(attrs)
	case "attributeGroup":
		return h.startAttributeGroup(attrs)
	case "anyAttribute":
		return h.startAnyAttribute()
	case "list":
		return h.startList(attrs)
	case "union":
		return h.startUnion(attrs)
	case "enumeration", "pattern", "length", "minLength", "maxLength",
		"minInclusive", "maxInclusive", "minExclusive", "maxExclusive",
		"totalDigits", "fractionDigits", "whiteSpace":
		return h.startFacet(tag, attrs)
	default:
		h.push(&frame{tag: "_skip"})
		return nil
	}
}

func (h *Handler) push(f *frame) { h.stack = append(h.stack, f) }

func (h *Handler) resolveQName(attrs []scanner.Attr, local string, defaultToTarget bool) (xml.Name, bool) {
	v, ok := attrValue(attrs, local)
	if !ok {
		return xml.Name{}, false
	}
	prefix, localName := qname.SplitQName(v)
	if prefix == "" {
		if _, isBuiltin := ParseBuiltin(xml.Name{Space: NS, Local: localName}); isBuiltin {
			return xml.Name{Space: NS, Local: localName}, true
		}
		if defaultToTarget {
			return xml.Name{Space: h.targetNS, Local: localName}, true
		}
		return xml.Name{Local: localName}, true
	}
	resolved, _ := h.scope().Resolve(v, "")
	return resolved, true
}

func occurs(attrs []scanner.Attr) (min, max int) {
	min, max = 1, 1
	if v, ok := attrValue(attrs, "minOccurs"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			min = n
		}
	}
	if v, ok := attrValue(attrs, "maxOccurs"); ok {
		if v == "unbounded" {
			max = grammar.Unbounded
		} else if n, err := strconv.Atoi(v); err == nil {
			max = n
		}
	}
	return
}

func (h *Handler) startElementDecl(attrs []scanner.Attr) error {
	ed := &ElementDecl{Qualified: h.elemQual}
	min, max := occurs(attrs)
	ed.MinOccurs, ed.MaxOccurs = min, max
	isRef := false
	if v, ok := attrValue(attrs, "name"); ok {
		ns := ""
		if h.elemQual || len(h.stack) == 1 {
			ns = h.targetNS
		}
		ed.Name = xml.Name{Space: ns, Local: v}
		ed.Anonymous = false
	} else if ref, ok := h.resolveQName(attrs, "ref", true); ok {
		ed.Name = ref
		isRef = true
	}
	if t, ok := h.resolveQName(attrs, "type", true); ok {
		ed.Type = t
	}
	if v, ok := attrValue(attrs, "nillable"); ok {
		ed.Nillable = v == "true" || v == "1"
	}
	if v, ok := attrValue(attrs, "abstract"); ok {
		ed.Abstract = v == "true" || v == "1"
	}
	if v, ok := attrValue(attrs, "default"); ok {
		ed.Default = v
	}
	if v, ok := attrValue(attrs, "fixed"); ok {
		ed.Fixed = v
	}
	if sg, ok := h.resolveQName(attrs, "substitutionGroup", true); ok {
		ed.SubstitutionGroup = sg
	}
	h.push(&frame{tag: "element", ed: ed, min: min, max: max, name: ed.Name, isRef: isRef})
	return nil
}

func (h *Handler) startComplexType(attrs []scanner.Attr) error {
	ct := &ComplexType{Content: ContentEmpty}
	if v, ok := attrValue(attrs, "name"); ok {
		ct.Name = xml.Name{Space: h.targetNS, Local: v}
	} else {
		ct.Anonymous = true
	}
	if v, ok := attrValue(attrs, "mixed"); ok {
		ct.Mixed = v == "true" || v == "1"
	}
	h.push(&frame{tag: "complexType", ct: ct, name: ct.Name})
	return nil
}

func (h *Handler) startSimpleType(attrs []scanner.Attr) error {
	st := &SimpleType{}
	if v, ok := attrValue(attrs, "name"); ok {
		st.Name = xml.Name{Space: h.targetNS, Local: v}
	} else {
		st.Anonymous = true
	}
	h.push(&frame{tag: "simpleType", st: st, name: st.Name})
	return nil
}

func (h *Handler) startDerivation(attrs []scanner.Attr, d Derivation) error {
	base, _ := h.resolveQName(attrs, "base", true)
	h.push(&frame{tag: "derivation", derivation: d, baseName: base})
	return nil
}

func (h *Handler) startGroupParticle(attrs []scanner.Attr, tag string) error {
	min, max := occurs(attrs)
	h.push(&frame{tag: tag, min: min, max: max})
	return nil
}

func (h *Handler) startGroupRef(attrs []scanner.Attr) error {
	if v, ok := attrValue(attrs, "name"); ok {
		grp := &Group{Name: xml.Name{Space: h.targetNS, Local: v}}
		h.push(&frame{tag: "group-def", grp: grp, name: grp.Name})
		return nil
	}
	ref, ok := h.resolveQName(attrs, "ref", true)
	if !ok {
		h.push(&frame{tag: "_skip"})
		return h.fail("group element has neither name nor ref")
	}
	min, max := occurs(attrs)
	h.addParticle(grammar.GroupRefParticle{Ref: ref, Min: min, Max: max})
	h.push(&frame{tag: "_skip"})
	return nil
}

func (h *Handler) startAny(attrs []scanner.Attr) error {
	min, max := occurs(attrs)
	ns := "##any"
	if v, ok := attrValue(attrs, "namespace"); ok {
		ns = v
	}
	pc := "strict"
	if v, ok := attrValue(attrs, "processContents"); ok {
		pc = v
	}
	h.addParticle(grammar.AnyParticle{Namespace: ns, ProcessContents: pc, Min: min, Max: max})
	h.push(&frame{tag: "_skip"})
	return nil
}

func (h *Handler) startAttribute(attrs []scanner.Attr) error {
	a := grammar.AttributeDecl{Use: grammar.AttrOptional}
	if v, ok := attrValue(attrs, "name"); ok {
		ns := ""
		if h.attrQual {
			ns = h.targetNS
		}
		a.Name = xml.Name{Space: ns, Local: v}
	} else if ref, ok := h.resolveQName(attrs, "ref", true); ok {
		a.Name = ref
	}
	if t, ok := h.resolveQName(attrs, "type", true); ok {
		a.Type = t
	} else {
		a.Type = AnyType.Name()
	}
	if v, ok := attrValue(attrs, "use"); ok {
		switch v {
		case "required":
			a.Use = grammar.AttrRequired
		case "prohibited":
			a.Use = grammar.AttrProhibited
		default:
			a.Use = grammar.AttrOptional
		}
	}
	if v, ok := attrValue(attrs, "default"); ok {
		a.Default, a.HasDefault = v, true
	}
	if v, ok := attrValue(attrs, "fixed"); ok {
		a.Fixed, a.HasFixed = v, true
	}
	parent := h.top()
	switch {
	case parent != nil && parent.ag != nil:
		parent.ag.Attrs = append(parent.ag.Attrs, a)
	default:
		if ct := h.owningComplexType(); ct != nil {
			ct.Attributes = append(ct.Attributes, a)
		}
	}
	h.push(&frame{tag: "_skip"})
	return nil
}

func (h *Handler) startAttributeGroup(attrs []scanner.Attr) error {
	if v, ok := attrValue(attrs, "name"); ok {
		ag := &AttributeGroup{Name: xml.Name{Space: h.targetNS, Local: v}}
		h.push(&frame{tag: "attributeGroup-def", ag: ag, name: ag.Name})
		return nil
	}
	ref, ok := h.resolveQName(attrs, "ref", true)
	if !ok {
		h.push(&frame{tag: "_skip"})
		return h.fail("attributeGroup element has neither name nor ref")
	}
	owner := h.owningComplexType()
	h.pendingAttrGroups = append(h.pendingAttrGroups, pendingAttrGroupRef{owner: owner, name: ref})
	h.push(&frame{tag: "_skip"})
	return nil
}

func (h *Handler) startAnyAttribute() error {
	if owner := h.owningComplexType(); owner != nil {
		owner.AnyAttribute = true
	}
	h.push(&frame{tag: "_skip"})
	return nil
}

func (h *Handler) owningComplexType() *ComplexType {
	for i := len(h.stack) - 1; i >= 0; i-- {
		if h.stack[i].ct != nil {
			return h.stack[i].ct
		}
	}
	return nil
}

func (h *Handler) startList(attrs []scanner.Attr) error {
	st := h.topSimpleType()
	if st != nil {
		st.Variety = List
		if it, ok := h.resolveQName(attrs, "itemType", true); ok {
			st.ItemType = it
		}
	}
	h.push(&frame{tag: "_skip"})
	return nil
}

func (h *Handler) startUnion(attrs []scanner.Attr) error {
	st := h.topSimpleType()
	if st != nil {
		st.Variety = Union
		if v, ok := attrValue(attrs, "memberTypes"); ok {
			for _, tok := range strings.Fields(v) {
				name, _ := h.resolveQName([]scanner.Attr{{Name: xml.Name{Local: "memberTypes"}, Value: tok}}, "memberTypes", true)
				st.MemberTypes = append(st.MemberTypes, name)
			}
		}
	}
	h.push(&frame{tag: "_skip"})
	return nil
}

func (h *Handler) topSimpleType() *SimpleType {
	for i := len(h.stack) - 1; i >= 0; i-- {
		if h.stack[i].st != nil {
			return h.stack[i].st
		}
	}
	return nil
}

var facetKinds = map[string]FacetKind{
	"enumeration":    FacetEnumeration,
	"pattern":        FacetPattern,
	"length":         FacetLength,
	"minLength":      FacetMinLength,
	"maxLength":      FacetMaxLength,
	"minInclusive":   FacetMinInclusive,
	"maxInclusive":   FacetMaxInclusive,
	"minExclusive":   FacetMinExclusive,
	"maxExclusive":   FacetMaxExclusive,
	"totalDigits":    FacetTotalDigits,
	"fractionDigits": FacetFractionDigits,
	"whiteSpace":     FacetWhiteSpace,
}

func (h *Handler) startFacet(tag string, attrs []scanner.Attr) error {
	st := h.topSimpleType()
	if st == nil {
		h.push(&frame{tag: "_skip"})
		return nil
	}
	v, _ := attrValue(attrs, "value")
	st.Facets = append(st.Facets, Facet{Kind: facetKinds[tag], Value: v})
	h.push(&frame{tag: "_skip"})
	return nil
}

func (h *Handler) addParticle(p grammar.Particle) {
	parent := h.top()
	if parent == nil {
		return
	}
	switch parent.tag {
	case "sequence", "choice", "group-def":
		parent.seqChildren = append(parent.seqChildren, p)
	case "all":
		if ep, ok := p.(grammar.ElementParticle); ok {
			parent.allChildren = append(parent.allChildren, ep)
		}
	case "element", "complexType", "derivation":
		if ct := h.nearestComplexType(); ct != nil {
			if err := ct.SetContentModel(p); err != nil {
				h.diags = append(h.diags, err)
			}
		}
	}
}

func (h *Handler) nearestComplexType() *ComplexType {
	for i := len(h.stack) - 1; i >= 0; i-- {
		if h.stack[i].ct != nil {
			return h.stack[i].ct
		}
	}
	return nil
}

func (h *Handler) EndElement(name xml.Name) error {
	scope := h.scopes[len(h.scopes)-1]
	h.scopes = h.scopes[:len(h.scopes)-1]

	f := h.top()
	if f == nil {
		return nil
	}
	h.stack = h.stack[:len(h.stack)-1]
	_ = scope

	switch f.tag {
	case "_skip", "schema":
		return nil
	case "element":
		ed := f.ed
		top := len(h.stack) == 0 || h.stack[len(h.stack)-1].tag == "schema"
		if !f.isRef {
			// A named element declaration is registered under its
			// canonical (namespaceURI, localName) key regardless of
			// nesting depth, so the validator can resolve a local
			// declaration the same way it resolves a top-level one.
			h.g.addElement(ed)
		}
		if !top {
			h.addParticle(grammar.ElementParticle{Name: ed.Name, Min: f.min, Max: f.max})
		}
		return nil
	case "group-def":
		grp := f.grp
		if grp.Model == nil && len(f.seqChildren) > 0 {
			grp.Model = flattenOne(f.seqChildren)
		}
		h.g.addGroup(grp)
		return nil
	case "attributeGroup-def":
		h.g.addAttrGroup(f.ag)
		return nil
	case "sequence":
		h.addParticle(grammar.SequenceParticle{Children: flattenSequence(f.seqChildren), Min: f.min, Max: f.max})
		return nil
	case "choice":
		h.addParticle(grammar.ChoiceParticle{Children: f.seqChildren, Min: f.min, Max: f.max})
		return nil
	case "all":
		h.addParticle(grammar.AllParticle{Children: f.allChildren})
		return nil
	case "complexType":
		ct := f.ct
		if ct.Anonymous {
			// An inline type belongs to its enclosing element
			// declaration; it has no canonical key of its own.
			if parent := h.top(); parent != nil && parent.ed != nil {
				parent.ed.TypeInline = ct
			}
			return nil
		}
		h.g.addType(ct)
		return nil
	case "simpleType":
		st := f.st
		if err := ValidateFacetConsistency(st.Facets); err != nil {
			if e := h.fail(err.Error()); e != nil {
				return e
			}
			return nil // lax mode: the inconsistent type is dropped
		}
		if st.Anonymous {
			if parent := h.top(); parent != nil && parent.ed != nil {
				parent.ed.TypeInline = st
			}
			return nil
		}
		h.g.addType(st)
		return nil
	case "simpleContent":
		return nil
	case "complexContent":
		return nil
	case "derivation":
		return h.endDerivation(f)
	}
	return nil
}

// flattenSequence implements the extension-merge flattening rule: nested
// Sequence particles merge into their parent, but Choice and All keep
// their own identity.
func flattenSequence(children []grammar.Particle) []grammar.Particle {
	var out []grammar.Particle
	for _, c := range children {
		if seq, ok := c.(grammar.SequenceParticle); ok && seq.Min == 1 && seq.Max == 1 {
			out = append(out, seq.Children...)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (h *Handler) endDerivation(f *frame) error {
	owner := h.owningComplexType()
	if owner == nil {
		// restriction/extension of a simpleType base: record the base
		// on the enclosing SimpleType (found via topSimpleType), since
		// the base type name is the only thing a simple restriction/
		// extension needs at this model's level of fidelity.
		if st := h.topSimpleType(); st != nil {
			st.Base = f.baseName
		}
		return nil
	}
	owner.Derivation = f.derivation
	owner.Base = f.baseName
	if f.derivation == Extension {
		baseType, ok := h.g.FindType(f.baseName)
		if ok {
			if baseCT, ok := baseType.(*ComplexType); ok && baseCT.Model != nil {
				merged := grammar.SequenceParticle{
					Children: append(append([]grammar.Particle{}, flattenSequence([]grammar.Particle{baseCT.Model})...), flattenSequence(f.seqChildren)...),
					Min:      1, Max: 1,
				}
				return owner.SetContentModel(merged)
			}
			if baseCT, ok := baseType.(*ComplexType); ok {
				owner.Attributes = append(append([]grammar.AttributeDecl{}, baseCT.Attributes...), owner.Attributes...)
			}
		}
	}
	if len(f.seqChildren) > 0 {
		return owner.SetContentModel(flattenOne(f.seqChildren))
	}
	return nil
}

func flattenOne(particles []grammar.Particle) grammar.Particle {
	if len(particles) == 1 {
		return particles[0]
	}
	return grammar.SequenceParticle{Children: particles, Min: 1, Max: 1}
}

// EndDocument drains the deferred group and attribute-group reference
// queues against the now-complete grammar, consulting the cross-schema
// resolver functions for references this document did not itself
// define. Any reference still unresolved is reported through
// Diagnostics but does not by itself fail the load. Freeze checks only
// type references, so whether such a diagnostic is fatal is decided by
// whoever drives the load (DefaultGrammarHandler fails on any
// diagnostic when validating).
func (h *Handler) EndDocument() error {
	for _, t := range h.g.types {
		if ct, ok := t.(*ComplexType); ok && ct.Model != nil {
			ct.Model = h.resolveGroupRefs(ct.Model)
		}
	}
	for _, grp := range h.g.groups {
		if grp.Model != nil {
			grp.Model = h.resolveGroupRefs(grp.Model)
		}
	}
	for _, ed := range h.g.elements {
		if ct, ok := ed.TypeInline.(*ComplexType); ok && ct.Model != nil {
			ct.Model = h.resolveGroupRefs(ct.Model)
		}
	}
	for _, p := range h.pendingAttrGroups {
		ag, ok := h.g.attrGroups[clarkKey(p.name)]
		var attrs []grammar.AttributeDecl
		if ok {
			attrs = ag.Attrs
		} else if h.ResolveAttrGroup != nil {
			if v, ok := h.ResolveAttrGroup(p.name); ok {
				if g, ok := v.(*AttributeGroup); ok {
					attrs = g.Attrs
				}
			}
		}
		if attrs == nil {
			h.diags = append(h.diags, &UnresolvedReference{Kind: "attributeGroup", Name: p.name.Local})
			continue
		}
		if p.owner != nil {
			p.owner.Attributes = append(p.owner.Attributes, attrs...)
		}
	}
	return nil
}

func clarkKey(name xml.Name) string { return qname.Clark(name) }

// resolveGroupRefs walks a particle tree substituting every
// GroupRefParticle with the model of the group it names, recursing
// into the substituted model in case the referenced group itself
// contains further group references (including, tolerably, mutually
// recursive ones bottomed out by the lack of an actual cycle in valid
// schemas). A reference that never resolves is reported as a
// diagnostic and replaced with an empty sequence so the rest of the
// content model stays usable.
func (h *Handler) resolveGroupRefs(p grammar.Particle) grammar.Particle {
	switch v := p.(type) {
	case grammar.GroupRefParticle:
		grp, ok := h.g.groups[clarkKey(v.Ref)]
		var model grammar.Particle
		if ok {
			model = grp.Model
		} else if h.ResolveGroup != nil {
			if ref, ok := h.ResolveGroup(v.Ref); ok {
				if g, ok := ref.(*Group); ok {
					model = g.Model
				}
			}
		}
		if model == nil {
			h.diags = append(h.diags, &UnresolvedReference{Kind: "group", Name: v.Ref.Local})
			return grammar.SequenceParticle{Min: v.Min, Max: v.Max}
		}
		model = h.resolveGroupRefs(model)
		if v.Min == 1 && v.Max == 1 {
			return model
		}
		return grammar.SequenceParticle{Children: []grammar.Particle{model}, Min: v.Min, Max: v.Max}
	case grammar.SequenceParticle:
		children := make([]grammar.Particle, len(v.Children))
		for i, c := range v.Children {
			children[i] = h.resolveGroupRefs(c)
		}
		v.Children = children
		return v
	case grammar.ChoiceParticle:
		children := make([]grammar.Particle, len(v.Children))
		for i, c := range v.Children {
			children[i] = h.resolveGroupRefs(c)
		}
		v.Children = children
		return v
	default:
		return p
	}
}
