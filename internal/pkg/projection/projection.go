// Package projection limits JSON documents to an explicit set of fields.
package projection

import (
	"sort"
	"strings"

	apperrors "switchboard/internal/pkg/errors"
)

// AllowList is the set of field names a caller may request.
type AllowList map[string]struct{}

func NewAllowList(fields ...string) AllowList {
	a := make(AllowList, len(fields))
	for _, f := range fields {
		a[f] = struct{}{}
	}
	return a
}

// Parse splits a comma-separated field list and rejects any name outside
// the allow-list. An empty list returns nil, meaning every field.
func (a AllowList) Parse(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	seen := make(map[string]bool)
	var fields []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, ok := a[name]; !ok {
			return nil, apperrors.New(apperrors.KindInvalidInput, "unknown field: "+name+" (allowed: "+strings.Join(a.Names(), ", ")+")")
		}
		if !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
	}
	return fields, nil
}

func (a AllowList) Names() []string {
	names := make([]string, 0, len(a))
	for n := range a {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Project returns a copy of doc holding only the requested keys. A nil
// field list returns doc unchanged.
func Project(doc map[string]any, fields []string) map[string]any {
	if fields == nil {
		return doc
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}
