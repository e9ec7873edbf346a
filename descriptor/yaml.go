package descriptor

import (
	"errors"
	"io"

	"gopkg.in/yaml.v3"
)

type yamlDoc struct {
	Operations []yamlOperation `yaml:"operations"`
}

type yamlOperation struct {
	Line int `yaml:"-"`

	TargetAssembly string            `yaml:"targetAssembly,omitempty"`
	TargetType     string            `yaml:"targetType"`
	TargetMethod   string            `yaml:"targetMethod"`
	Replacements   []yamlReplacement `yaml:"replacements"`
}

func (op *yamlOperation) UnmarshalYAML(n *yaml.Node) error {
	type plain yamlOperation
	if err := n.Decode((*plain)(op)); err != nil {
		return err
	}
	op.Line = n.Line
	return nil
}

type yamlReplacement struct {
	Line int `yaml:"-"`

	Find           *string `yaml:"find"`
	Replace        *string `yaml:"replace"`
	IsFormatString *bool   `yaml:"isFormatString,omitempty"`
	IsRegex        *bool   `yaml:"isRegex,omitempty"`
	Pattern        string  `yaml:"pattern,omitempty"`
	Context        string  `yaml:"context,omitempty"`
	Quality        float64 `yaml:"quality,omitempty"`
}

func (rep *yamlReplacement) UnmarshalYAML(n *yaml.Node) error {
	type plain yamlReplacement
	if err := n.Decode((*plain)(rep)); err != nil {
		return err
	}
	rep.Line = n.Line
	return nil
}

func decodeYAML(r io.Reader) ([]operation, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc yamlDoc
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ops := make([]operation, 0, len(doc.Operations))
	for _, yop := range doc.Operations {
		op := operation{
			Line:   yop.Line,
			Module: yop.TargetAssembly,
			Type:   yop.TargetType,
			Method: yop.TargetMethod,
		}
		for _, yr := range yop.Replacements {
			op.Replacements = append(op.Replacements, replacement{
				Line:           yr.Line,
				Find:           yr.Find,
				Replace:        yr.Replace,
				IsFormatString: yr.IsFormatString,
				IsRegex:        yr.IsRegex,
				Pattern:        yr.Pattern,
				Context:        yr.Context,
				Quality:        yr.Quality,
			})
		}
		ops = append(ops, op)
	}
	return ops, nil
}
