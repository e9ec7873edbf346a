package typesys

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pboyd/retext/apis"
)

type modelDoc struct {
	Modules []moduleDoc `yaml:"modules"`
}

type moduleDoc struct {
	Name  string    `yaml:"name"`
	Types []typeDoc `yaml:"types"`
}

type typeDoc struct {
	Name         string      `yaml:"name"`
	Methods      []methodDoc `yaml:"methods,omitempty"`
	Capabilities []string    `yaml:"capabilities,omitempty"`
	Nested       []typeDoc   `yaml:"nested,omitempty"`
}

type methodDoc struct {
	Name    string `yaml:"name"`
	Returns string `yaml:"returns,omitempty"`
}

// Load reads a model from YAML:
//
//	modules:
//	  - name: Core
//	    types:
//	      - name: RimWorld.Storyteller
//	        methods:
//	          - name: GetItems
//	            returns: lazy-sequence
//	        nested:
//	          - name: "<GetItems>d__7"
//	            capabilities: [step.iterator]
//	            methods: [{name: MoveNext}]
func Load(r io.Reader) (*Model, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc modelDoc
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	m := New()
	for _, mod := range doc.Modules {
		for _, td := range mod.Types {
			if td.Name == "" {
				return nil, fmt.Errorf("module %q: type without a name", mod.Name)
			}
			if err := fill(m.Type(mod.Name, td.Name), td); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// LoadFile reads a model from a YAML file.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func fill(t *Type, td typeDoc) error {
	for _, md := range td.Methods {
		shape, err := apis.ParseShape(md.Returns)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.QualifiedName(), md.Name, err)
		}
		t.Method(md.Name, shape)
	}
	for _, c := range td.Capabilities {
		t.Implements(apis.Capability(c))
	}
	for _, nd := range td.Nested {
		if nd.Name == "" {
			return fmt.Errorf("%s: nested type without a name", t.QualifiedName())
		}
		if err := fill(t.Nested(nd.Name), nd); err != nil {
			return err
		}
	}
	return nil
}
