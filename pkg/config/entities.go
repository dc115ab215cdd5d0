package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PackageName is the homeassistant.packages key under which persistent
// entities are registered.
const PackageName = "test_harness"

// PersistentEntities is a YAML mapping suitable for use as a
// homeassistant.packages entry: helper domains, template sensors and the
// like that tests rely on across container restarts.
type PersistentEntities map[string]any

// LoadPersistentEntities reads and validates a persistent entities file.
// The file must contain a non-empty YAML mapping.
func LoadPersistentEntities(path string) (PersistentEntities, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read persistent entities file %s: %w", path, err)
	}

	var entities PersistentEntities
	if err := yaml.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("invalid YAML in persistent entities file %s: %w", path, err)
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("persistent entities file %s must contain a non-empty YAML mapping usable as homeassistant.packages.%s", path, PackageName)
	}
	return entities, nil
}

// PatchConfiguration rewrites a configuration.yaml document so that
//
//	homeassistant:
//	  packages:
//	    test_harness: !include <includeFile>
//
// is present, preserving existing homeassistant and packages entries and
// Home Assistant tags such as !include and !secret. Patching is idempotent:
// an existing test_harness entry is left alone.
func PatchConfiguration(doc []byte, includeFile string) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("failed to parse configuration.yaml: %w", err)
	}

	var mapping *yaml.Node
	switch {
	case root.Kind == 0 || len(root.Content) == 0:
		// Empty document.
		mapping = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{mapping}}
	case root.Content[0].Kind == yaml.MappingNode:
		mapping = root.Content[0]
	default:
		return nil, fmt.Errorf("configuration.yaml root is not a mapping")
	}

	ha, err := childMapping(mapping, "homeassistant")
	if err != nil {
		return nil, err
	}
	packages, err := childMapping(ha, "packages")
	if err != nil {
		return nil, err
	}

	if findChild(packages, PackageName) == nil {
		packages.Content = append(packages.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: PackageName},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!include", Value: includeFile},
		)
	}

	out, err := yaml.Marshal(&root)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode configuration.yaml: %w", err)
	}
	return out, nil
}

// childMapping returns the mapping value for key under parent, creating an
// empty one when the key is missing. A key whose value delegates elsewhere
// (e.g. `homeassistant: !include other.yaml`) cannot be patched in place.
func childMapping(parent *yaml.Node, key string) (*yaml.Node, error) {
	if val := findChild(parent, key); val != nil {
		if val.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("cannot patch configuration.yaml: %q is not a block mapping (value tagged %s)", key, val.Tag)
		}
		return val, nil
	}

	val := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	parent.Content = append(parent.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		val,
	)
	return val, nil
}

// findChild returns the value node for key in a mapping node, or nil.
func findChild(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
