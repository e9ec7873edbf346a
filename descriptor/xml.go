package descriptor

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type xmlPatch struct {
	XMLName    xml.Name       `xml:"Patch"`
	Operations []xmlOperation `xml:"Operation"`
}

type xmlOperation struct {
	Class          string           `xml:"Class,attr"`
	TargetAssembly string           `xml:"targetAssembly"`
	TargetType     string           `xml:"targetType"`
	TargetMethod   string           `xml:"targetMethod"`
	Replacements   []xmlReplacement `xml:"replacements>li"`
}

type xmlReplacement struct {
	IsFormatString *string `xml:"isFormatString,attr"`
	IsRegex        *string `xml:"isRegex,attr"`
	Pattern        string  `xml:"pattern,attr"`
	Context        string  `xml:"context,attr"`
	Quality        string  `xml:"quality,attr"`
	Find           *string `xml:"find"`
	Replace        *string `xml:"replace"`
}

func decodeXML(r io.Reader) ([]operation, error) {
	var doc xmlPatch
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	ops := make([]operation, 0, len(doc.Operations))
	for _, xop := range doc.Operations {
		if !strings.HasSuffix(xop.Class, OperationClassSuffix) {
			continue
		}
		op := operation{
			Module: strings.TrimSpace(xop.TargetAssembly),
			Type:   strings.TrimSpace(xop.TargetType),
			Method: strings.TrimSpace(xop.TargetMethod),
		}
		for _, xr := range xop.Replacements {
			op.Replacements = append(op.Replacements, xr.replacement())
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (xr xmlReplacement) replacement() replacement {
	rep := replacement{
		Find:    xr.Find,
		Replace: xr.Replace,
		Pattern: xr.Pattern,
		Context: xr.Context,
	}

	var err error
	if rep.IsFormatString, err = parseBool("isFormatString", xr.IsFormatString); err != nil {
		rep.err = err
	}
	if rep.IsRegex, err = parseBool("isRegex", xr.IsRegex); err != nil {
		rep.err = err
	}
	if xr.Quality != "" {
		if rep.Quality, err = strconv.ParseFloat(xr.Quality, 64); err != nil {
			rep.err = fmt.Errorf("quality: %w", err)
		}
	}
	return rep
}

func parseBool(name string, s *string) (*bool, error) {
	if s == nil {
		return nil, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(*s))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &v, nil
}
