package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/rs/zerolog/log"
	"github.com/titanous/json5"
)

type fileShape struct {
	Defaults map[string]any `json:"defaults"`
}

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// ReadFile reads the "defaults" block of a JSON (or JSON5) config file and
// merges <name>.local.<ext> over it. Keys beginning with "_" are dropped.
// Returns an os.IsNotExist error when neither file exists.
func ReadFile(name string) (map[string]any, error) {
	out := map[string]any{}
	found := false

	base, err := readDefaults(name)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		out = base
		found = true
	}

	prefix, ext := splitExt(filepath.Base(name))
	localPath := filepath.Join(filepath.Dir(name), fmt.Sprintf("%s.local.%s", prefix, ext))
	local, err := readDefaults(localPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := mergo.Merge(&out, local, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge %s: %w", localPath, err)
		}
		log.Debug().Str("local", localPath).Msg("Merging config with local overrides")
		found = true
	}

	if !found {
		return nil, os.ErrNotExist
	}
	return out, nil
}

func readDefaults(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var shape fileShape
	if err := json5.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(map[string]any, len(shape.Defaults))
	for k, v := range shape.Defaults {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out, nil
}
