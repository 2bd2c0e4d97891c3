// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package detection

import (
	"html"
	"strings"
)

// normalizeLabel canonicalizes an app label for use inside a group key:
// trimmed, lowercased, internal whitespace collapsed to single
// underscores. Crawl sources report the same app with inconsistent
// casing and spacing; the group key must not split on that.
func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), "_")
}

// normalizeUserName canonicalizes a display name: HTML entities
// unescaped, lowercased, whitespace collapsed. Display names are the
// weakest identity signal and arrive HTML-escaped from some sources.
func normalizeUserName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(html.UnescapeString(s))), " ")
}

// ResolveUserKey picks the strongest available identity for a capture
// row: explicit alias, then user id, then normalized display name.
// Returns "" when no identity survives normalization; such rows cannot
// form a group. Dispatch uses the same resolution when backfilling the
// delivered identity, so the UserAuthEntity facet always matches the
// one that grouped the evidence.
func ResolveUserKey(alias, id, name string) string {
	if key := strings.TrimSpace(alias); key != "" {
		return key
	}
	if key := strings.TrimSpace(id); key != "" {
		return key
	}
	return normalizeUserName(name)
}

// groupID builds the deterministic group key for one (app, media-item,
// user) cluster.
func groupID(appLabel, bookID, userKey string) string {
	return normalizeLabel(appLabel) + "_" + bookID + "_" + userKey
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
