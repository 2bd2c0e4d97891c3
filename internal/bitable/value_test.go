// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package bitable

import "testing"

func TestValueString(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "  hello  ", "hello"},
		{"integral float", float64(42), "42"},
		{"fractional float", 1.5, "1.5"},
		{"bool", true, "true"},
		{
			name:  "rich text array",
			value: []any{map[string]any{"text": "part one"}, map[string]any{"text": "part two"}},
			want:  "part one part two",
		},
		{
			name:  "plain array",
			value: []any{"a", "", "b"},
			want:  "a,b",
		},
		{
			name:  "user object",
			value: map[string]any{"name": "alice", "id": "ou_123"},
			want:  "alice",
		},
		{
			name:  "link object",
			value: map[string]any{"link": "https://example.com/v/1", "text": ""},
			want:  "https://example.com/v/1",
		},
		{
			name:  "wrapped value",
			value: map[string]any{"value": []any{map[string]any{"text": "wrapped"}}},
			want:  "wrapped",
		},
		{
			name:  "location object",
			value: map[string]any{"location": "12.3,45.6", "cityname": "Hangzhou"},
			want:  "12.3,45.6,Hangzhou",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValueString(tt.value); got != tt.want {
				t.Errorf("ValueString(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestValueInt(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{"float cell", float64(1001), 1001},
		{"string cell", "1002", 1002},
		{"float string", "1003.0", 1003},
		{"garbage", "n/a", 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValueInt(tt.value); got != tt.want {
				t.Errorf("ValueInt(%v) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestValueFloat(t *testing.T) {
	if got := ValueFloat("330.5"); got != 330.5 {
		t.Errorf("ValueFloat(330.5) = %g", got)
	}
	if got := ValueFloat(map[string]any{}); got != 0 {
		t.Errorf("ValueFloat(empty object) = %g, want 0", got)
	}
}

func TestIDFilter(t *testing.T) {
	f := IDFilter("TaskID", []string{"1", " 2 ", "", "1"})
	if f == nil {
		t.Fatal("IDFilter() = nil")
	}
	if f.Conjunction != "or" {
		t.Errorf("Conjunction = %q", f.Conjunction)
	}
	if len(f.Conditions) != 2 {
		t.Fatalf("len(Conditions) = %d, want 2", len(f.Conditions))
	}
	if f.Conditions[1].Value[0] != "2" {
		t.Errorf("second condition value = %q, want 2", f.Conditions[1].Value[0])
	}

	if got := IDFilter("", []string{"1"}); got != nil {
		t.Errorf("IDFilter with empty field = %v, want nil", got)
	}
	if got := IDFilter("TaskID", nil); got != nil {
		t.Errorf("IDFilter with no values = %v, want nil", got)
	}
}
