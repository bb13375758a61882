package kv

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadOptions reads Options from a YAML file, e.g.:
//
//	dir: /var/lib/loamkv
//	memtable_size: 4194304
func LoadOptions(path string) (Options, error) {
	var opts Options

	raw, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("kv: read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("kv: parse config: %w", err)
	}
	return opts, nil
}
