package rhyme

import (
	"bytes"
	"encoding/json"
)

// FragmentResult holds the ranked candidates of one fragment.
type FragmentResult struct {
	// Text is the fragment text the result belongs to.
	Text string

	// Span is the fragment's word-index span [start, end).
	Span [2]int

	lists [numCategories][]string
}

// List returns the ranked candidates for c. The slice is never nil for an
// emitted category.
func (r *FragmentResult) List(c Category) []string {
	if c <= None || c >= numCategories {
		return nil
	}
	if r.lists[c] == nil {
		return []string{}
	}
	return r.lists[c]
}

// Set replaces the list for c. Setting None is ignored.
func (r *FragmentResult) Set(c Category, list []string) {
	if c <= None || c >= numCategories {
		return
	}
	r.lists[c] = list
}

// Empty reports whether every category list is empty.
func (r *FragmentResult) Empty() bool {
	for _, c := range Categories {
		if len(r.lists[c]) > 0 {
			return false
		}
	}
	return true
}

// MarshalJSON writes the closed result schema: span followed by all six
// category lists, each present even when empty.
func (r *FragmentResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"span":`)
	span, err := json.Marshal(r.Span)
	if err != nil {
		return nil, err
	}
	buf.Write(span)
	for _, c := range Categories {
		buf.WriteString(`,"` + c.String() + `":`)
		list, err := json.Marshal(r.List(c))
		if err != nil {
			return nil, err
		}
		buf.Write(list)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// AnalysisResult is the outcome of analysing one line.
type AnalysisResult struct {
	OriginalLine string

	// Fragments lists the fragments with at least one candidate, in
	// enumeration order.
	Fragments []*FragmentResult
}

// Get returns the result for the fragment text, or nil.
func (a *AnalysisResult) Get(text string) *FragmentResult {
	for _, f := range a.Fragments {
		if f.Text == text {
			return f
		}
	}
	return nil
}

// MarshalJSON writes {"original_line": ..., "fragments": {text: result}}
// keeping fragments in enumeration order.
func (a *AnalysisResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"original_line":`)
	line, err := json.Marshal(a.OriginalLine)
	if err != nil {
		return nil, err
	}
	buf.Write(line)
	buf.WriteString(`,"fragments":`)
	frags, err := a.MarshalFragments()
	if err != nil {
		return nil, err
	}
	buf.Write(frags)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalFragments writes only the ordered fragment mapping. Transports that
// wrap the mapping in their own envelope use it directly.
func (a *AnalysisResult) MarshalFragments() (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range a.Fragments {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
