package domain

// Record is the immutable flat data record conditions are evaluated against.
// Values are float64, string, bool, or nil.
type Record struct {
	fields map[string]any
}

// NewRecord copies fields into a new record.
func NewRecord(fields map[string]any) Record {
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Record{fields: cp}
}

// Get returns the value of field, or nil when absent.
func (r Record) Get(field string) any {
	return r.fields[field]
}

// Lookup reports whether field is present in the record.
func (r Record) Lookup(field string) (any, bool) {
	v, ok := r.fields[field]
	return v, ok
}

// With returns a new record with extra merged over the existing fields.
func (r Record) With(extra map[string]any) Record {
	cp := make(map[string]any, len(r.fields)+len(extra))
	for k, v := range r.fields {
		cp[k] = v
	}
	for k, v := range extra {
		cp[k] = v
	}
	return Record{fields: cp}
}

// Fields returns a copy of the underlying values.
func (r Record) Fields() map[string]any {
	cp := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		cp[k] = v
	}
	return cp
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.fields)
}
