package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/ragcore/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BuildReport summarizes one BuildIndex run.
type BuildReport struct {
	// Indexed counts files read and chunked.
	Indexed int `json:"indexed"`
	// Restored counts unchanged files taken from the catalog.
	Restored int `json:"restored"`
	// Failed counts paths that could not be indexed.
	Failed int `json:"failed"`
	// Pruned counts catalog entries whose files no longer exist.
	Pruned     int   `json:"pruned"`
	DurationMs int64 `json:"duration_ms"`
}

// BuildIndex walks every configured root. Per-path failures are logged and
// counted; only context cancellation aborts the walk.
func (idx *Indexer) BuildIndex(ctx context.Context) (BuildReport, error) {
	start := time.Now()
	var report BuildReport
	known := idx.catalogEntries(ctx)
	seen := make(map[string]bool)

	for _, root := range idx.cfg.Paths {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			idx.trace.Warn("root_invalid", err, zap.String("path", root))
			report.Failed++
			continue
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			idx.trace.Warn("root_unavailable", err, zap.String("path", absRoot))
			report.Failed++
			continue
		}
		if !info.IsDir() {
			seen[absRoot] = true
			idx.indexFile(ctx, absRoot, info, known, &report)
			continue
		}
		err = idx.walkFiles(ctx, absRoot, func(path string, err error) {
			idx.trace.Warn("walk_failed", err, zap.String("path", path))
			report.Failed++
		}, func(path string, finfo os.FileInfo) {
			seen[path] = true
			idx.indexFile(ctx, path, finfo, known, &report)
		})
		if err != nil && ctx.Err() != nil {
			return report, err
		}
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	report.Pruned = idx.pruneCatalog(ctx, known, seen)
	report.DurationMs = time.Since(start).Milliseconds()
	idx.trace.Timed(zapcore.InfoLevel, "index_built", start,
		zap.Int("indexed", report.Indexed),
		zap.Int("restored", report.Restored),
		zap.Int("failed", report.Failed),
		zap.Int("pruned", report.Pruned),
	)
	return report, nil
}

func (idx *Indexer) indexFile(ctx context.Context, path string, info os.FileInfo, known map[string]*models.DocumentIndexEntry, report *BuildReport) {
	if idx.restore(ctx, path, info, known[path]) {
		report.Restored++
		return
	}
	if _, err := idx.AddDocument(ctx, models.DocumentInput{Path: path}); err != nil {
		idx.trace.Warn("index_failed", err, zap.String("path", path))
		report.Failed++
		return
	}
	report.Indexed++
}

// restore installs the catalog copy of path when the file is unchanged since
// it was cataloged with the current chunk options.
func (idx *Indexer) restore(ctx context.Context, path string, info os.FileInfo, summary *models.DocumentIndexEntry) bool {
	if idx.catalog == nil || summary == nil {
		return false
	}
	if summary.Metadata.Size != info.Size() ||
		!summary.LastModified.Equal(info.ModTime()) ||
		summary.Metadata.ChunkSignature != idx.cfg.Chunk.Signature() {
		return false
	}
	entry, err := idx.catalog.GetEntry(ctx, path)
	if err != nil {
		idx.trace.Warn("catalog_read_failed", err, zap.String("path", path))
		return false
	}
	if len(entry.Chunks) != entry.Metadata.ChunkCount {
		return false
	}
	if err := idx.install(ctx, entry); err != nil {
		idx.trace.Warn("restore_failed", err, zap.String("path", path))
		return false
	}
	idx.trace.Debug("document_restored", zap.String("path", path), zap.Int("chunks", len(entry.Chunks)))
	return true
}

func (idx *Indexer) catalogEntries(ctx context.Context) map[string]*models.DocumentIndexEntry {
	known := make(map[string]*models.DocumentIndexEntry)
	if idx.catalog == nil {
		return known
	}
	entries, err := idx.catalog.ListEntries(ctx)
	if err != nil {
		idx.trace.Warn("catalog_list_failed", err)
		return known
	}
	for _, e := range entries {
		known[e.Path] = e
	}
	return known
}

// pruneCatalog deletes catalog entries for files that were not seen during
// the walk and are not indexed, such as files deleted while stopped.
func (idx *Indexer) pruneCatalog(ctx context.Context, known map[string]*models.DocumentIndexEntry, seen map[string]bool) int {
	if idx.catalog == nil {
		return 0
	}
	pruned := 0
	for path := range known {
		if seen[path] {
			continue
		}
		if _, indexed := idx.Entry(path); indexed {
			continue
		}
		if err := idx.catalog.DeleteEntry(ctx, path); err != nil {
			idx.trace.Warn("catalog_prune_failed", err, zap.String("path", path))
			continue
		}
		pruned++
	}
	return pruned
}

// walkFiles calls visit for every regular file under root that passes the
// extension allow-list. Hidden directories below root are skipped. Only
// context errors end the walk early.
func (idx *Indexer) walkFiles(ctx context.Context, root string, onErr func(string, error), visit func(string, os.FileInfo)) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			onErr(path, walkErr)
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && isHidden(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !idx.Accepts(path) {
			return nil
		}
		// Resolve symlinks so only regular files are indexed.
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		visit(path, info)
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Walk calls visit for every file under root that BuildIndex would index.
// A file root is visited directly. Walk errors below root are logged.
func (idx *Indexer) Walk(ctx context.Context, root string, visit func(path string)) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		visit(absRoot)
		return nil
	}
	return idx.walkFiles(ctx, absRoot, func(p string, err error) {
		idx.trace.Warn("walk_failed", err, zap.String("path", p))
	}, func(p string, _ os.FileInfo) {
		visit(p)
	})
}

// Accepts reports whether a file at path would be picked up by a directory
// walk: its extension is allowed and its name is not hidden.
func (idx *Indexer) Accepts(path string) bool {
	return !isHidden(filepath.Base(path)) && idx.extensionAllowed(filepath.Ext(path))
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// extensionAllowed applies the configured allow-list, or the extractor's
// supported formats when none is configured.
func (idx *Indexer) extensionAllowed(ext string) bool {
	if len(idx.cfg.Extensions) == 0 {
		return ext != "" && idx.extractor.Supported(ext)
	}
	return ExtensionAllowed(ext, idx.cfg.Extensions)
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and the
// leading dot.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
