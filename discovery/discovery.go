// Package discovery finds and parses patch descriptors in module
// directories.
//
// Every immediate subdirectory of a root is a module. Modules are scanned
// concurrently on a bounded pool. If the pool fails for any reason the
// partial results are dropped and the whole scan runs again on one
// goroutine.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pboyd/retext/descriptor"
)

// DefaultPatchDir is the directory inside a module that holds descriptors.
const DefaultPatchDir = "Patches"

// DefaultExtensions are the descriptor file extensions.
var DefaultExtensions = []string{".xml", ".yaml", ".yml"}

// DefaultWorkers is half the CPUs, at least one.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()/2)
}

// Options configures a scan.
type Options struct {
	// Workers bounds the number of modules scanned at once. Zero means
	// DefaultWorkers.
	Workers int
	// PatchDir is the directory inside each module to search. Empty
	// searches the whole module.
	PatchDir string
	// Extensions lists the file extensions to read, with the leading dot.
	Extensions []string

	Logger *slog.Logger
}

// DefaultOptions returns the default scan options.
func DefaultOptions() Options {
	return Options{
		Workers:    DefaultWorkers(),
		PatchDir:   DefaultPatchDir,
		Extensions: slices.Clone(DefaultExtensions),
	}
}

// Result is everything a scan found.
type Result struct {
	// Modules lists the module directories scanned, sorted.
	Modules []string
	// Files holds the parsed descriptors, sorted by path.
	Files []*descriptor.File
	// Errs holds files that could not be read or decoded.
	Errs []error
	// Sequential is set when the pool failed and the scan was redone on
	// one goroutine.
	Sequential bool
}

// Patches returns the patches of every file in file order.
func (r *Result) Patches() []descriptor.Patch {
	var out []descriptor.Patch
	for _, f := range r.Files {
		out = append(out, f.Patches...)
	}
	return out
}

// Malformed returns the malformed-descriptor errors of every file.
func (r *Result) Malformed() []error {
	var out []error
	for _, f := range r.Files {
		out = append(out, f.Errs...)
	}
	return out
}

// Err joins the file errors.
func (r *Result) Err() error {
	return errors.Join(r.Errs...)
}

type moduleResult struct {
	files []*descriptor.File
	errs  []error
}

type scanner struct {
	opts Options
	log  *slog.Logger

	// scanModule is replaced in tests.
	scanModule func(ctx context.Context, s *scanner, dir string) (moduleResult, error)
}

// Scan reads the descriptors of every module under roots. The returned
// error is for roots that cannot be listed or a cancelled context; per-file
// problems are in Result.Errs.
func Scan(ctx context.Context, roots []string, opts Options) (*Result, error) {
	return newScanner(opts).scan(ctx, roots)
}

func newScanner(opts Options) *scanner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	if opts.Extensions == nil {
		opts.Extensions = DefaultExtensions
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &scanner{opts: opts, log: log, scanModule: scanModule}
}

func (s *scanner) scan(ctx context.Context, roots []string) (*Result, error) {
	modules, err := listModules(roots)
	if err != nil {
		return nil, err
	}

	res, err := s.pooled(ctx, modules)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log.Warn("Parallel descriptor scan failed, retrying sequentially.", "error", err)
		res, err = s.sequential(ctx, modules)
		if err != nil {
			return nil, err
		}
	}

	res.Modules = modules
	slices.SortFunc(res.Files, func(a, b *descriptor.File) int {
		return strings.Compare(a.Path, b.Path)
	})
	s.log.Debug("Scanned modules.", "modules", len(modules), "files", len(res.Files), "errors", len(res.Errs), "sequential", res.Sequential)
	return res, nil
}

func (s *scanner) pooled(ctx context.Context, modules []string) (*Result, error) {
	var (
		mu  sync.Mutex
		res = &Result{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, dir := range modules {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("scanning %s: panic: %v", dir, p)
				}
			}()

			mr, err := s.scanModule(gctx, s, dir)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			res.Files = append(res.Files, mr.files...)
			res.Errs = append(res.Errs, mr.errs...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *scanner) sequential(ctx context.Context, modules []string) (*Result, error) {
	res := &Result{Sequential: true}
	for _, dir := range modules {
		mr, err := s.scanModule(ctx, s, dir)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			res.Errs = append(res.Errs, err)
		}
		res.Files = append(res.Files, mr.files...)
		res.Errs = append(res.Errs, mr.errs...)
	}
	return res, nil
}

func listModules(roots []string) ([]string, error) {
	var modules []string
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				modules = append(modules, filepath.Join(root, e.Name()))
			}
		}
	}
	slices.Sort(modules)
	return modules, nil
}

func scanModule(ctx context.Context, s *scanner, dir string) (moduleResult, error) {
	var mr moduleResult

	base := dir
	if s.opts.PatchDir != "" {
		base = filepath.Join(dir, s.opts.PatchDir)
		if _, err := os.Stat(base); errors.Is(err, fs.ErrNotExist) {
			return mr, nil
		}
	}

	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !s.wants(path) {
			return nil
		}

		f, err := descriptor.ParseFile(path)
		if err != nil {
			mr.errs = append(mr.errs, err)
			return nil
		}
		mr.files = append(mr.files, f)
		return nil
	})
	if err != nil {
		return mr, fmt.Errorf("scanning %s: %w", dir, err)
	}
	return mr, nil
}

func (s *scanner) wants(path string) bool {
	ext := filepath.Ext(path)
	for _, want := range s.opts.Extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}
