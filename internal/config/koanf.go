// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority
// order. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/copycatch/config.yaml",
	"/etc/copycatch/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "COPYCATCH_CONFIG"

// Load builds the process configuration using Koanf v2 with layered
// sources:
//  1. Defaults: built-in struct defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
//
// The returned Config has passed validation; configuration errors abort
// before any I/O happens.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processHeaderFields(k); err != nil {
		return nil, fmt.Errorf("failed to process header fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envSectionPrefixes maps environment variable prefixes to config
// sections. Longer prefixes are matched first so PLAN_FIELD_ does not
// collide with a hypothetical PLAN_ section.
var envSectionPrefixes = []struct {
	prefix  string
	section string
}{
	{"plan_field_", "fields.plan."},
	{"task_field_", "fields.task."},
	{"ref_field_", "fields.reference."},
	{"evidence_field_", "fields.evidence."},
	{"result_source_", "result_source."},
	{"ref_cache_", "ref_cache."},
	{"bitable_", "bitable."},
	{"detection_", "detection."},
	{"dispatch_", "dispatch."},
	{"daemon_", "daemon."},
	{"log_", "logging."},
}

// envTransformFunc maps environment variable names to koanf paths:
//
//	BITABLE_APP_ID        -> bitable.app_id
//	DETECTION_THRESHOLD   -> detection.threshold
//	PLAN_FIELD_TASK_IDS   -> fields.plan.task_ids
//	LOG_LEVEL             -> logging.level
//
// Unrecognized variables map to "" and are ignored, so unrelated
// environment noise never leaks into the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	for _, m := range envSectionPrefixes {
		if strings.HasPrefix(key, m.prefix) {
			return m.section + strings.TrimPrefix(key, m.prefix)
		}
	}
	return ""
}

// processHeaderFields converts the DISPATCH_HEADERS environment form
// ("K1=v1,K2=v2") into the map the config struct expects. YAML-supplied
// maps pass through untouched.
func processHeaderFields(k *koanf.Koanf) error {
	const path = "dispatch.headers"
	val := k.Get(path)
	raw, ok := val.(string)
	if !ok || raw == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(name) == "" {
			return fmt.Errorf("malformed header pair %q", pair)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return k.Set(path, headers)
}
