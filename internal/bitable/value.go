// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package bitable

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Bitable cells are polymorphic: plain scalars, rich-text arrays, user
// objects, links, locations. The decoders here flatten everything the
// core reads into normalized strings and numbers, mirroring the lookup
// order the table API documents for each cell family.

// ValueString normalizes any cell value into a trimmed string.
func ValueString(value any) string {
	return strings.TrimSpace(normalizeValue(value))
}

// ValueInt normalizes a cell into an int64, tolerating float-shaped
// numbers. Returns 0 for anything unparseable.
func ValueInt(value any) int64 {
	raw := ValueString(value)
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

// ValueFloat normalizes a cell into a float64, or 0 if unparseable.
func ValueFloat(value any) float64 {
	raw := ValueString(value)
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}

func normalizeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case []any:
		return normalizeArray(v)
	case map[string]any:
		return normalizeObject(v)
	default:
		return ""
	}
}

func normalizeArray(items []any) string {
	if isRichTextArray(items) {
		return joinRichText(items)
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if p := normalizeValue(item); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ",")
}

func normalizeObject(obj map[string]any) string {
	// Wrapper objects expose their payload under one of these keys.
	for _, key := range []string{"value", "values", "elements", "content"} {
		if inner, ok := obj[key]; ok {
			if text := normalizeValue(inner); text != "" {
				return text
			}
		}
	}
	if text, ok := obj["text"].(string); ok && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	// Link, user and attachment cells.
	for _, key := range []string{"link", "name", "en_name", "email", "id", "user_id", "url", "tmp_url", "file_token"} {
		if text := normalizeValue(obj[key]); text != "" {
			return text
		}
	}
	// Location cells.
	if hasAnyKey(obj, "address", "location", "pname", "cityname", "adname") {
		parts := make([]string, 0, 4)
		for _, key := range []string{"location", "pname", "cityname", "adname"} {
			if p := normalizeValue(obj[key]); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ",")
		}
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return string(raw)
}

func hasAnyKey(obj map[string]any, keys ...string) bool {
	for _, key := range keys {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}

func isRichTextArray(items []any) bool {
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			if _, ok := obj["text"]; ok {
				return true
			}
		}
	}
	return false
}

func joinRichText(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			if text := normalizeValue(item); text != "" {
				parts = append(parts, text)
			}
			continue
		}
		if text, ok := obj["text"].(string); ok && strings.TrimSpace(text) != "" {
			parts = append(parts, strings.TrimSpace(text))
			continue
		}
		if nested := normalizeValue(obj["value"]); nested != "" {
			parts = append(parts, nested)
		}
	}
	return strings.Join(parts, " ")
}
