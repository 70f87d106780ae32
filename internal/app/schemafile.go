package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arkilian/realmstore/pkg/types"
)

// SchemaFile is the on-disk form of an expected schema:
//
//	version: 2
//	classes:
//	  - name: Dog
//	    fields:
//	      - {name: id, type: integer, primary_key: true}
//	      - {name: name, type: string, required: true, indexed: true}
//	      - {name: owner, type: object, link: Person}
//
// Fields take their type's default nullability unless required or nullable is
// set.
type SchemaFile struct {
	Version int64       `yaml:"version"`
	Classes []classFile `yaml:"classes"`
}

type classFile struct {
	Name   string      `yaml:"name"`
	Fields []fieldFile `yaml:"fields"`
}

type fieldFile struct {
	Name       string          `yaml:"name"`
	Type       types.FieldType `yaml:"type"`
	Required   bool            `yaml:"required"`
	Nullable   bool            `yaml:"nullable"`
	Indexed    bool            `yaml:"indexed"`
	PrimaryKey bool            `yaml:"primary_key"`
	Link       string          `yaml:"link"`
}

// LoadSchemaFile reads and validates a schema file.
func LoadSchemaFile(path string) (*types.Schema, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ParseSchemaFile(data)
}

// ParseSchemaFile parses a schema file and returns the schema and its version.
func ParseSchemaFile(data []byte) (*types.Schema, int64, error) {
	var f SchemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, 0, fmt.Errorf("failed to parse schema file: %w", err)
	}
	if f.Version < 0 {
		return nil, 0, fmt.Errorf("schema version %d must not be negative", f.Version)
	}

	classes := make([]types.ClassDescriptor, 0, len(f.Classes))
	for _, c := range f.Classes {
		fields := make([]types.FieldDescriptor, 0, len(c.Fields))
		for _, ff := range c.Fields {
			if ff.Required && ff.Nullable {
				return nil, 0, fmt.Errorf("field '%s.%s' cannot be both required and nullable", c.Name, ff.Name)
			}
			var mods []types.Modifier
			if ff.Required {
				mods = append(mods, types.Required)
			}
			if ff.Nullable {
				mods = append(mods, types.Nullable)
			}
			if ff.Indexed {
				mods = append(mods, types.Indexed)
			}
			if ff.PrimaryKey {
				mods = append(mods, types.PrimaryKey)
			}
			if ff.Link != "" {
				mods = append(mods, types.LinkTo(ff.Link))
			}
			fields = append(fields, types.Field(ff.Name, ff.Type, mods...))
		}
		classes = append(classes, types.Class(c.Name, fields...))
	}

	s := types.NewSchema(classes...)
	if err := s.Validate(); err != nil {
		return nil, 0, fmt.Errorf("invalid schema file: %w", err)
	}
	return s, f.Version, nil
}
