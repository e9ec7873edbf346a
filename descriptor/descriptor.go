// Package descriptor reads declarative patch descriptors.
//
// A descriptor names a target method and the translations for the strings
// it uses. Two encodings are read: the XML form
//
//	<Patch>
//	  <Operation Class="Retext.StringTranslate">
//	    <targetAssembly>Core</targetAssembly>
//	    <targetType>RimWorld.Storyteller</targetType>
//	    <targetMethod>Notify</targetMethod>
//	    <replacements>
//	      <li isFormatString="true">
//	        <find>Raid will arrive in {0} hours</find>
//	        <replace>袭击将在{0}小时后到来</replace>
//	      </li>
//	    </replacements>
//	  </Operation>
//	</Patch>
//
// and an equivalent YAML document with a top-level "operations" list.
// Malformed operations and entries are skipped and reported; the rest of
// the file is still read.
package descriptor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pboyd/retext/apis"
	"github.com/pboyd/retext/pattern"
)

// OperationClassSuffix identifies the XML operations this package reads.
const OperationClassSuffix = "StringTranslate"

// Format is a descriptor encoding.
type Format uint8

const (
	FormatXML Format = iota + 1
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatYAML:
		return "yaml"
	}
	return fmt.Sprintf("format(%d)", f)
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return FormatXML, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return 0, false
}

// Patch is one target method and its translations.
type Patch struct {
	Module string
	Type   string
	Method string

	Entries []apis.TranslationEntry
}

// Target returns "Type.Method".
func (p Patch) Target() string {
	return p.Type + "." + p.Method
}

// File is the result of reading one descriptor.
type File struct {
	Path    string
	Patches []Patch

	// Errs holds one MalformedDescriptor error per skipped operation or
	// entry.
	Errs []error
	// Warnings holds problems that do not stop an entry from being used.
	Warnings []string
}

// Err joins Errs.
func (f *File) Err() error {
	return errors.Join(f.Errs...)
}

// Entries returns the number of entries across all patches.
func (f *File) Entries() int {
	n := 0
	for _, p := range f.Patches {
		n += len(p.Entries)
	}
	return n
}

// ParseFile reads the descriptor at path. The format comes from the file
// extension.
func ParseFile(path string) (*File, error) {
	format, ok := FormatFor(path)
	if !ok {
		return nil, fmt.Errorf("%s: unknown descriptor format", path)
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	f, err := parse(fh, format, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse reads a descriptor from r. The returned error reports a document
// that could not be decoded at all; problems with single operations or
// entries are in File.Errs.
func Parse(r io.Reader, format Format) (*File, error) {
	return parse(r, format, "")
}

func parse(r io.Reader, format Format, path string) (*File, error) {
	var (
		ops []operation
		err error
	)
	switch format {
	case FormatXML:
		ops, err = decodeXML(r)
	case FormatYAML:
		ops, err = decodeYAML(r)
	default:
		return nil, fmt.Errorf("unsupported format %v", format)
	}
	if err != nil {
		return nil, err
	}

	f := &File{Path: path}
	for i, op := range ops {
		f.addOperation(i, op)
	}
	return f, nil
}

// operation is a decoded operation, common to both formats.
type operation struct {
	Line         int
	Module       string
	Type         string
	Method       string
	Replacements []replacement
}

type replacement struct {
	Line           int
	Find           *string
	Replace        *string
	IsFormatString *bool
	IsRegex        *bool
	Pattern        string
	Context        string
	Quality        float64

	// err is a decoding problem confined to this entry.
	err error
}

func (f *File) where(i, line int) string {
	where := fmt.Sprintf("operation %d", i+1)
	if line > 0 {
		where = fmt.Sprintf("line %d", line)
	}
	if f.Path != "" {
		where = f.Path + ": " + where
	}
	return where
}

func (f *File) malformed(where, format string, args ...any) {
	f.Errs = append(f.Errs, apis.NewError(apis.KindMalformedDescriptor, where, fmt.Errorf(format, args...)))
}

func (f *File) addOperation(i int, op operation) {
	where := f.where(i, op.Line)
	switch {
	case op.Type == "":
		f.malformed(where, "missing targetType")
		return
	case op.Method == "":
		f.malformed(where, "missing targetMethod")
		return
	}

	p := Patch{Module: op.Module, Type: op.Type, Method: op.Method}
	for j, rep := range op.Replacements {
		entryWhere := fmt.Sprintf("%s: %s: replacement %d", where, p.Target(), j+1)
		if rep.Line > 0 {
			entryWhere = fmt.Sprintf("%s: %s: line %d", where, p.Target(), rep.Line)
		}

		e, err := rep.entry()
		if err != nil {
			f.malformed(entryWhere, "%v", err)
			continue
		}
		if e.IsTemplate && !pattern.Compatible(e.Original, e.Translated) {
			f.Warnings = append(f.Warnings, fmt.Sprintf("%s: translation %q drops placeholders of %q", entryWhere, e.Translated, e.Original))
		}
		if !e.Exact() {
			if _, err := pattern.Compile(e); err != nil {
				f.Warnings = append(f.Warnings, fmt.Sprintf("%s: %v", entryWhere, err))
			}
		}
		p.Entries = append(p.Entries, e)
	}
	f.Patches = append(f.Patches, p)
}

func (rep replacement) entry() (apis.TranslationEntry, error) {
	if rep.err != nil {
		return apis.TranslationEntry{}, rep.err
	}
	if rep.Find == nil || *rep.Find == "" {
		return apis.TranslationEntry{}, errors.New("missing find")
	}
	if rep.Replace == nil {
		return apis.TranslationEntry{}, errors.New("missing replace")
	}

	e := apis.TranslationEntry{
		Original:   *rep.Find,
		Translated: *rep.Replace,
		Pattern:    rep.Pattern,
		Context:    rep.Context,
		Quality:    rep.Quality,
	}
	if rep.IsRegex != nil {
		e.IsRegex = *rep.IsRegex
	}
	if e.IsRegex && e.Pattern == "" {
		e.Pattern = e.Original
	}
	if rep.IsFormatString != nil {
		e.IsTemplate = *rep.IsFormatString
	} else if !e.IsRegex {
		e.IsTemplate = pattern.HasPlaceholder(e.Original)
	}

	if err := e.Validate(); err != nil {
		return apis.TranslationEntry{}, err
	}
	return e, nil
}
