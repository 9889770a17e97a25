package parse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxFileSize is the cap above which files are recorded but not parsed.
const DefaultMaxFileSize = 1 << 20 // 1 MiB

var skippedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".git":         true,
}

// extractorByExt maps source file extensions to extractor constructors. A
// fresh extractor per file keeps tree-sitter parser state worker-local.
var extractorByExt = map[string]func() Extractor{
	".py":  func() Extractor { return NewPythonExtractor() },
	".js":  func() Extractor { return NewJavaScriptExtractor() },
	".jsx": func() Extractor { return NewJavaScriptExtractor() },
	".mjs": func() Extractor { return NewJavaScriptExtractor() },
	".ts":  func() Extractor { return NewTypeScriptExtractor() },
	".tsx": func() Extractor { return NewTSXExtractor() },
}

// ScanOptions configures repository scanning.
type ScanOptions struct {
	// MaxFileSize caps parseable file size in bytes (0 = DefaultMaxFileSize).
	MaxFileSize int64
	// Workers bounds parallel per-file extraction (0 = 4). Each file produces
	// an independent record; cross-file resolution happens later in the
	// builder, behind its symbol-table barrier.
	Workers int
	// Include restricts scanning to these path prefixes when non-empty.
	Include []string
}

// ScanRepository walks root, extracts every supported source file in
// parallel, and returns parsed-file records in deterministic path order.
// Unsupported files are skipped; oversized and unreadable files produce
// errored records.
func ScanRepository(ctx context.Context, root string, opts ScanOptions) ([]ParsedFile, error) {
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		name := info.Name()
		if info.IsDir() {
			if skippedDirs[name] || (strings.HasPrefix(name, ".") && path != root) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := extractorByExt[filepath.Ext(name)]; !ok {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if len(opts.Include) > 0 && !matchesInclude(rel, opts.Include) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	results := make([]ParsedFile, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rel := range paths {
		g.Go(func() error {
			// Tree-sitter parsers are not safe for concurrent use; one per
			// worker invocation keeps the records independent.
			ex := extractorByExt[filepath.Ext(rel)]()
			abs := filepath.Join(root, filepath.FromSlash(rel))

			info, statErr := os.Stat(abs)
			var pf ParsedFile
			switch {
			case statErr != nil:
				pf = ParsedFile{Path: rel, Err: statErr.Error()}
			case info.Size() > maxSize:
				pf = ParsedFile{Path: rel, Err: fmt.Sprintf("file exceeds %d bytes, not parsed", maxSize)}
			default:
				source, readErr := os.ReadFile(abs)
				if readErr != nil {
					pf = ParsedFile{Path: rel, Err: readErr.Error()}
				} else {
					pf = ex.ExtractSource(gctx, rel, source)
				}
			}
			mu.Lock()
			results[i] = pf
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func matchesInclude(rel string, include []string) bool {
	for _, prefix := range include {
		if strings.HasPrefix(rel, strings.TrimSuffix(prefix, "/")) {
			return true
		}
	}
	return false
}
