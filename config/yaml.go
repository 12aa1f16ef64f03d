// File: config/yaml.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// YAML configuration loading into a Registry. The fiber package reads
// FiberStackSizeKey from this file; LoadYAML itself is called only by
// code that wants file-backed config (in this repository, its tests).

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FiberStackSizeKey is the registry key holding the fiber stack size:
// "fiber.stack_size".
const FiberStackSizeKey = "fiber.stack_size"

// DefaultFiberStackSize is the default fiber stack allowance: 128 KiB.
const DefaultFiberStackSize = 128 * 1024

// Document is the on-disk shape consumed by LoadYAML. Nested under "fiber"
// to leave room for sibling top-level sections (scheduler, iomanager) an
// application might add without colliding with this package's keys.
type Document struct {
	Fiber struct {
		StackSize int `yaml:"stack_size"`
	} `yaml:"fiber"`
}

// LoadYAML reads path and populates a new Registry. A missing or zero
// fiber.stack_size leaves DefaultFiberStackSize in place.
func LoadYAML(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	r := NewRegistry()
	stackSize := doc.Fiber.StackSize
	if stackSize <= 0 {
		stackSize = DefaultFiberStackSize
	}
	r.Set(FiberStackSizeKey, stackSize)
	return r, nil
}
