package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ValidateFacetConsistency applies XML Schema's declaration-time
// consistency rules to a SimpleType's facet list: length
// excludes minLength/maxLength; minLength <= maxLength; fractionDigits
// <= totalDigits; minInclusive and minExclusive are mutually exclusive
// (likewise maxInclusive/maxExclusive); and when both a minimum and a
// maximum are given, min <= max, strictly so when both are exclusive.
func ValidateFacetConsistency(facets []Facet) error {
	var length, minLen, maxLen, totalDigits, fractionDigits *string
	var minIncl, minExcl, maxIncl, maxExcl *string

	get := func(k FacetKind) *string {
		for _, f := range facets {
			if f.Kind == k {
				v := f.Value
				return &v
			}
		}
		return nil
	}
	length = get(FacetLength)
	minLen = get(FacetMinLength)
	maxLen = get(FacetMaxLength)
	totalDigits = get(FacetTotalDigits)
	fractionDigits = get(FacetFractionDigits)
	minIncl = get(FacetMinInclusive)
	minExcl = get(FacetMinExclusive)
	maxIncl = get(FacetMaxInclusive)
	maxExcl = get(FacetMaxExclusive)

	if length != nil && (minLen != nil || maxLen != nil) {
		return &SchemaLoadError{Message: "length facet excludes minLength/maxLength"}
	}
	if minLen != nil && maxLen != nil {
		a, _ := strconv.Atoi(*minLen)
		b, _ := strconv.Atoi(*maxLen)
		if a > b {
			return &SchemaLoadError{Message: "minLength must be <= maxLength"}
		}
	}
	if fractionDigits != nil && totalDigits != nil {
		a, _ := strconv.Atoi(*fractionDigits)
		b, _ := strconv.Atoi(*totalDigits)
		if a > b {
			return &SchemaLoadError{Message: "fractionDigits must be <= totalDigits"}
		}
	}
	if minIncl != nil && minExcl != nil {
		return &SchemaLoadError{Message: "minInclusive and minExclusive are mutually exclusive"}
	}
	if maxIncl != nil && maxExcl != nil {
		return &SchemaLoadError{Message: "maxInclusive and maxExclusive are mutually exclusive"}
	}
	min, minStrict := coalesce(minIncl, minExcl)
	max, maxStrict := coalesce(maxIncl, maxExcl)
	if min != nil && max != nil {
		a, errA := strconv.ParseFloat(*min, 64)
		b, errB := strconv.ParseFloat(*max, 64)
		if errA == nil && errB == nil {
			if minStrict && maxStrict {
				if a >= b {
					return &SchemaLoadError{Message: "exclusive minimum must be < exclusive maximum"}
				}
			} else if a > b {
				return &SchemaLoadError{Message: "minimum must be <= maximum"}
			}
		}
	}
	return nil
}

func coalesce(incl, excl *string) (*string, bool) {
	if excl != nil {
		return excl, true
	}
	return incl, false
}

// ApplyFacets applies facets to value in declaration order. The
// whiteSpace facet is recorded but not applied, here or elsewhere:
// every facet, length-style ones included, checks value exactly as
// given.
func ApplyFacets(facets []Facet, value string) error {
	for _, f := range facets {
		if err := applyFacet(f, value); err != nil {
			return err
		}
	}
	return nil
}

func applyFacet(f Facet, value string) error {
	switch f.Kind {
	case FacetEnumeration:
		// Enumeration is a set; ApplyFacets is called once per facet so
		// an enumeration check only rejects when every allowed value in
		// the set has been checked and none matched. The parser stores
		// one Facet per allowed value, so a single mismatch here must
		// not reject outright; the caller (ValidateValue's composition)
		// treats enumeration specially. See validateEnumeration.
		return nil
	case FacetPattern:
		re, err := regexp.Compile("^(?:" + f.Value + ")$")
		if err != nil {
			return &SchemaLoadError{Message: "invalid pattern facet " + f.Value}
		}
		if !re.MatchString(value) {
			return fmt.Errorf("value %q does not match pattern %q", value, f.Value)
		}
	case FacetLength:
		n, _ := strconv.Atoi(f.Value)
		if len([]rune(value)) != n {
			return fmt.Errorf("value %q does not have length %d", value, n)
		}
	case FacetMinLength:
		n, _ := strconv.Atoi(f.Value)
		if len([]rune(value)) < n {
			return fmt.Errorf("value %q is shorter than minLength %d", value, n)
		}
	case FacetMaxLength:
		n, _ := strconv.Atoi(f.Value)
		if len([]rune(value)) > n {
			return fmt.Errorf("value %q is longer than maxLength %d", value, n)
		}
	case FacetMinInclusive, FacetMinExclusive, FacetMaxInclusive, FacetMaxExclusive:
		return applyNumericBound(f, value)
	case FacetTotalDigits:
		n, _ := strconv.Atoi(f.Value)
		count := 0
		for _, r := range value {
			if r >= '0' && r <= '9' {
				count++
			}
		}
		if count > n {
			return fmt.Errorf("value %q has more than %d total digits", value, n)
		}
	case FacetFractionDigits:
		n, _ := strconv.Atoi(f.Value)
		if i := strings.IndexByte(value, '.'); i >= 0 {
			if len(value)-i-1 > n {
				return fmt.Errorf("value %q has more than %d fraction digits", value, n)
			}
		}
	case FacetWhiteSpace:
		// normalization mode ("preserve"/"replace"/"collapse"); recorded
		// only, no normalization is performed.
	}
	return nil
}

func applyNumericBound(f Facet, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil // non-numeric base types ignore numeric bounds
	}
	bound, err := strconv.ParseFloat(f.Value, 64)
	if err != nil {
		return nil
	}
	switch f.Kind {
	case FacetMinInclusive:
		if v < bound {
			return fmt.Errorf("value %q is less than minInclusive %s", value, f.Value)
		}
	case FacetMinExclusive:
		if v <= bound {
			return fmt.Errorf("value %q is not greater than minExclusive %s", value, f.Value)
		}
	case FacetMaxInclusive:
		if v > bound {
			return fmt.Errorf("value %q is greater than maxInclusive %s", value, f.Value)
		}
	case FacetMaxExclusive:
		if v >= bound {
			return fmt.Errorf("value %q is not less than maxExclusive %s", value, f.Value)
		}
	}
	return nil
}
