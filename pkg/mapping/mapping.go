package mapping

import "fmt"

// FieldClass controls how a field is reconciled against the remote value.
type FieldClass int

const (
	// Authoritative fields always mirror the remote system. The first
	// source name present on the record wins, even when its value is
	// empty, so the remote system can blank a local value.
	Authoritative FieldClass = iota
	// Protective fields may be enriched by sync but never blanked. The
	// first source name with a non-empty value wins; otherwise the field
	// stays unset and the local value survives.
	Protective
)

// Normalizer cleans a raw source value before assignment. ok=false means
// the value is unusable and must not be stored verbatim.
type Normalizer func(raw string) (value interface{}, ok bool)

// FieldRule maps one internal field to an ordered list of source names.
type FieldRule struct {
	Target    string
	Sources   []string
	Class     FieldClass
	Normalize Normalizer
}

// Table is the mapping table for one entity type.
type Table struct {
	Entity string
	Rules  []FieldRule
}

// Record is a partial internal record. A key that is present must be
// applied, even when its value is empty or nil; an absent key leaves the
// local field untouched.
type Record map[string]interface{}

// Extract transforms a raw external record into a partial internal record
// according to the table. It performs no I/O and is deterministic.
func (t *Table) Extract(raw map[string]interface{}) Record {
	out := make(Record, len(t.Rules))

	for _, rule := range t.Rules {
		switch rule.Class {
		case Authoritative:
			extractAuthoritative(rule, raw, out)
		case Protective:
			extractProtective(rule, raw, out)
		}
	}

	return out
}

// extractAuthoritative takes the first source that is present at all.
func extractAuthoritative(rule FieldRule, raw map[string]interface{}, out Record) {
	for _, source := range rule.Sources {
		value, present := raw[source]
		if !present {
			continue
		}

		str := stringify(value)
		if rule.Normalize == nil {
			out[rule.Target] = str
			return
		}

		normalized, ok := rule.Normalize(str)
		if !ok {
			// The source owns this field, so an unusable value still
			// clears it rather than surviving verbatim.
			out[rule.Target] = nil
			return
		}
		out[rule.Target] = normalized
		return
	}
}

// extractProtective takes the first source with a non-empty value.
func extractProtective(rule FieldRule, raw map[string]interface{}, out Record) {
	for _, source := range rule.Sources {
		value, present := raw[source]
		if !present {
			continue
		}

		str := stringify(value)
		if str == "" {
			continue
		}

		if rule.Normalize == nil {
			out[rule.Target] = str
			return
		}

		normalized, ok := rule.Normalize(str)
		if !ok {
			// Unusable enrichment is dropped; the local value survives.
			return
		}
		out[rule.Target] = normalized
		return
	}
}

// stringify renders a raw remote value as a string. Remote payloads mix
// strings, numbers and nulls for the same field across records.
func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// String returns the string value for key, treating nil and absent as "".
func (r Record) String(key string) string {
	value, present := r[key]
	if !present || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// Int returns the int value for key and whether it is set.
func (r Record) Int(key string) (int, bool) {
	value, present := r[key]
	if !present || value == nil {
		return 0, false
	}
	n, ok := value.(int)
	return n, ok
}

// Has reports whether key is present, including present-but-nil.
func (r Record) Has(key string) bool {
	_, present := r[key]
	return present
}
