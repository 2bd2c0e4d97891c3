// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package bitable

import "strings"

// Condition is one leaf of the search filter tree: a field compared to
// one or more values.
type Condition struct {
	FieldName string   `json:"field_name"`
	Operator  string   `json:"operator"`
	Value     []string `json:"value"`
}

// Filter is a single-level boolean tree of conditions joined by one
// conjunction, the shape the records/search endpoint accepts.
type Filter struct {
	Conjunction string      `json:"conjunction"`
	Conditions  []Condition `json:"conditions"`
}

// Is builds an equality condition on one field.
func Is(fieldName, value string) Condition {
	return Condition{FieldName: fieldName, Operator: "is", Value: []string{value}}
}

// And joins conditions with the "and" conjunction. Returns nil for an
// empty condition set so callers can pass it straight to SearchRecords.
func And(conds ...Condition) *Filter {
	if len(conds) == 0 {
		return nil
	}
	return &Filter{Conjunction: "and", Conditions: conds}
}

// Or joins conditions with the "or" conjunction.
func Or(conds ...Condition) *Filter {
	if len(conds) == 0 {
		return nil
	}
	return &Filter{Conjunction: "or", Conditions: conds}
}

// IDFilter builds an "or" filter matching any of the given values on one
// field, deduplicating and skipping blanks. Returns nil when nothing
// remains, so an empty value list never turns into an unfiltered scan.
func IDFilter(fieldName string, values []string) *Filter {
	fieldName = strings.TrimSpace(fieldName)
	if fieldName == "" {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	conds := make([]Condition, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		conds = append(conds, Is(fieldName, value))
	}
	return Or(conds...)
}
