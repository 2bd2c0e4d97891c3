// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package bitable

import (
	"fmt"
	"net/url"
	"strings"
)

// TableRef identifies one bitable table. It is parsed from the table URL
// an operator copies out of the browser; either an app token (base URL)
// or a wiki token (wiki URL, resolved to an app token on first use) is
// present.
type TableRef struct {
	RawURL    string
	AppToken  string
	TableID   string
	ViewID    string
	WikiToken string
}

// ParseTableRef extracts the tokens from a bitable URL of either form:
//
//	https://example.feishu.cn/base/<appToken>?table=<tableID>&view=<viewID>
//	https://example.feishu.cn/wiki/<wikiToken>?table=<tableID>
func ParseTableRef(raw string) (TableRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TableRef{}, fmt.Errorf("bitable url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return TableRef{}, fmt.Errorf("invalid bitable url: %w", err)
	}
	if u.Scheme == "" {
		return TableRef{}, fmt.Errorf("bitable url missing scheme")
	}

	var appToken, wikiToken string
	segments := splitPath(u.Path)
	for i := 0; i+1 < len(segments); i++ {
		switch segments[i] {
		case "base":
			appToken = segments[i+1]
		case "wiki":
			wikiToken = segments[i+1]
		}
		if appToken != "" {
			break
		}
	}
	if appToken == "" && wikiToken == "" && len(segments) > 0 {
		appToken = segments[len(segments)-1]
	}

	qs := u.Query()
	tableID := firstQueryValue(qs, "table", "tableId", "table_id")
	if tableID == "" {
		return TableRef{}, fmt.Errorf("missing table id in bitable url query")
	}

	return TableRef{
		RawURL:    raw,
		AppToken:  appToken,
		TableID:   tableID,
		ViewID:    firstQueryValue(qs, "view", "viewId", "view_id"),
		WikiToken: wikiToken,
	}, nil
}

func splitPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstQueryValue(qs url.Values, keys ...string) string {
	for _, key := range keys {
		for _, val := range qs[key] {
			if v := strings.TrimSpace(val); v != "" {
				return v
			}
		}
	}
	return ""
}
