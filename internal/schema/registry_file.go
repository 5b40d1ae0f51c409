package schema

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"domainreader/pkg/platform/sentinel"
)

// FileRegistry serves descriptors from a YAML document, for local
// development and tests without a registry service.
type FileRegistry struct {
	descriptors map[Key]*Descriptor
}

type fileEntry struct {
	Map        string `yaml:"map"`
	Version    string `yaml:"version"`
	Type       string `yaml:"type"`
	Descriptor `yaml:",inline"`
}

type fileDocument struct {
	Schemas []fileEntry `yaml:"schemas"`
}

// LoadFileRegistry reads and validates every descriptor in path.
func LoadFileRegistry(path string) (*FileRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return ParseFileRegistry(raw)
}

// ParseFileRegistry builds a registry from YAML bytes.
func ParseFileRegistry(raw []byte) (*FileRegistry, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}

	reg := &FileRegistry{descriptors: make(map[Key]*Descriptor, len(doc.Schemas))}
	for i := range doc.Schemas {
		entry := doc.Schemas[i]
		key := Key{Map: entry.Map, Version: entry.Version, Type: entry.Type}
		if key.Map == "" || key.Type == "" {
			return nil, fmt.Errorf("schema entry %d: map and type are required", i)
		}
		if _, dup := reg.descriptors[key]; dup {
			return nil, fmt.Errorf("schema entry %d: duplicate key %s", i, key)
		}
		descriptor := entry.Descriptor
		if err := descriptor.Validate(); err != nil {
			return nil, fmt.Errorf("schema entry %s: %w", key, err)
		}
		reg.descriptors[key] = &descriptor
	}
	return reg, nil
}

func (r *FileRegistry) GetSchema(_ context.Context, key Key) (*Descriptor, error) {
	descriptor, ok := r.descriptors[key]
	if !ok {
		return nil, fmt.Errorf("schema %s: %w", key, sentinel.ErrNotFound)
	}
	return descriptor, nil
}
