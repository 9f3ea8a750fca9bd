package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxbrain/voxindex/internal/embedder"
	"github.com/voxbrain/voxindex/internal/parser"
	"github.com/voxbrain/voxindex/internal/storage"
	"github.com/voxbrain/voxindex/pkg/types"
)

// Indexer coordinates the indexing pipeline: discover -> parse -> embed -> store
type Indexer struct {
	registry *parser.Registry
	embedder embedder.Embedder
	store    storage.Store
	logger   *slog.Logger
	locks    *lockTable
	exclude  ExcludeFunc

	// Worker pool configuration
	workers int
}

// Summary reports the outcome of one indexing run.
type Summary struct {
	ProjectID         string        `json:"project_id"`
	FilesScanned      int           `json:"files_scanned"`
	FilesParsed       int           `json:"files_parsed"`
	FilesFailed       int           `json:"files_failed"`
	SymbolsWritten    int           `json:"symbols_written"`
	SymbolsPruned     int           `json:"symbols_pruned"`
	EmbeddingFailures int           `json:"embedding_failures"`
	RejectedWrites    int           `json:"rejected_writes"`
	Duration          time.Duration `json:"duration"`
	Failures          []string      `json:"failures,omitempty"`
}

// fileSymbols carries one parsed file from the parse workers to the
// writer.
type fileSymbols struct {
	relPath string
	symbols []types.Symbol
}

// New creates a new Indexer instance
func New(store storage.Store, emb embedder.Embedder, registry *parser.Registry, workers int, logger *slog.Logger) *Indexer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		registry: registry,
		embedder: emb,
		store:    store,
		logger:   logger,
		locks:    newLockTable(),
		exclude:  DefaultExcludes,
		workers:  workers,
	}
}

// SetExcludeFunc replaces the default file exclusion predicate.
func (idx *Indexer) SetExcludeFunc(fn ExcludeFunc) {
	if fn != nil {
		idx.exclude = fn
	}
}

// IndexProject runs a full indexing pass over the project's tree. A
// second call for the same project while a run is active returns
// ErrIndexInProgress; runs for different projects proceed concurrently.
func (idx *Indexer) IndexProject(ctx context.Context, projectID string) (*Summary, error) {
	project, err := idx.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	lock := idx.locks.forProject(projectID)
	if !lock.TryAcquire() {
		return nil, fmt.Errorf("project %s: %w", projectID, types.ErrIndexInProgress)
	}
	defer lock.Release()

	// Refuse to mix vector dimensions within one index.
	if err := idx.store.EnsureDimension(ctx, idx.embedder.Dimension()); err != nil {
		return nil, err
	}

	startTime := time.Now()

	files, err := discoverFiles(project.RootPath, idx.registry, idx.exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	summary := &Summary{
		ProjectID:    projectID,
		FilesScanned: len(files),
	}

	idx.logger.Info("indexing started",
		"project", project.Name, "files", len(files), "workers", idx.workers)

	if err := idx.indexFiles(ctx, project, files, summary); err != nil {
		return nil, err
	}

	if err := idx.store.MarkProjectIndexed(ctx, projectID, time.Now()); err != nil {
		return nil, err
	}

	summary.Duration = time.Since(startTime)
	idx.logger.Info("indexing finished",
		"project", project.Name,
		"parsed", summary.FilesParsed,
		"failed", summary.FilesFailed,
		"written", summary.SymbolsWritten,
		"pruned", summary.SymbolsPruned,
		"duration", summary.Duration)

	return summary, nil
}

// indexFiles fans file parsing out to a worker pool and funnels results
// into a single writer. SQLite prefers one writer, so storage traffic is
// serialized while parsing saturates the CPUs.
func (idx *Indexer) indexFiles(ctx context.Context, project *storage.Project, files []string, summary *Summary) error {
	var (
		parsed    atomic.Int32
		failed    atomic.Int32
		written   atomic.Int32
		pruned    atomic.Int32
		embedFail atomic.Int32
		rejected  atomic.Int32
	)

	var mu sync.Mutex // Protects summary.Failures
	recordFailure := func(relPath string, err error) {
		failed.Add(1)
		mu.Lock()
		summary.Failures = append(summary.Failures, fmt.Sprintf("%s: %v", relPath, err))
		mu.Unlock()
	}

	// Bounded channel decouples parse throughput from write throughput.
	results := make(chan *fileSymbols, idx.workers*2)

	g, gctx := errgroup.WithContext(ctx)
	semaphore := make(chan struct{}, idx.workers)

	for _, relPath := range files {
		relPath := relPath
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			fs, err := idx.parseFile(gctx, project, relPath)
			if err != nil {
				// A broken file fails alone; the run continues.
				recordFailure(relPath, err)
				return nil
			}

			select {
			case <-gctx.Done():
				return gctx.Err()
			case results <- fs:
			}
			return nil
		})
	}

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- idx.writeResults(ctx, project.ID, results,
			&parsed, &written, &pruned, &embedFail, &rejected, recordFailure)
	}()

	parseErr := g.Wait()
	close(results)
	writeErr := <-writerDone

	summary.FilesParsed = int(parsed.Load())
	summary.FilesFailed = int(failed.Load())
	summary.SymbolsWritten = int(written.Load())
	summary.SymbolsPruned = int(pruned.Load())
	summary.EmbeddingFailures = int(embedFail.Load())
	summary.RejectedWrites = int(rejected.Load())

	if parseErr != nil {
		return parseErr
	}
	return writeErr
}

// parseFile reads and parses one source file. A parse error is a per-file
// failure: the file's previously indexed symbols stay untouched.
func (idx *Indexer) parseFile(ctx context.Context, project *storage.Project, relPath string) (*fileSymbols, error) {
	p, err := idx.registry.ForFile(relPath)
	if err != nil {
		return nil, err
	}

	source, err := os.ReadFile(filepath.Join(project.RootPath, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, err
	}

	result, err := p.Parse(ctx, relPath, source)
	if err != nil {
		return nil, err
	}
	if result.Err != nil {
		return nil, result.Err
	}

	return &fileSymbols{relPath: relPath, symbols: result.Symbols}, nil
}

// writeResults consumes parsed files and commits each one in its own
// transaction: upserts plus pruning of rows the parse no longer produced.
// Cancellation is honored at file boundaries; completed files stay
// committed.
func (idx *Indexer) writeResults(ctx context.Context, projectID string, results <-chan *fileSymbols,
	parsed, written, pruned, embedFail, rejected *atomic.Int32,
	recordFailure func(string, error)) error {

	for fs := range results {
		if err := ctx.Err(); err != nil {
			// Drain so parse workers blocked on send can exit.
			for range results {
			}
			return err
		}

		if err := idx.writeFile(ctx, projectID, fs, written, pruned, embedFail, rejected); err != nil {
			recordFailure(fs.relPath, err)
			continue
		}
		parsed.Add(1)
	}
	return nil
}

// writeFile embeds and stores one file's symbols atomically.
func (idx *Indexer) writeFile(ctx context.Context, projectID string, fs *fileSymbols,
	written, pruned, embedFail, rejected *atomic.Int32) error {

	embeddings := idx.embedSymbols(ctx, fs, embedFail)

	tx, err := idx.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	keepIDs := make([]int64, 0, len(fs.symbols))
	for i := range fs.symbols {
		rec := storage.FromTypesSymbol(fs.symbols[i], projectID, embeddings[i])
		if err := tx.UpsertSymbol(ctx, rec); err != nil {
			if errors.Is(err, types.ErrMissingProjectID) {
				rejected.Add(1)
				continue
			}
			return fmt.Errorf("failed to store symbol %s: %w", fs.symbols[i].Name, err)
		}
		keepIDs = append(keepIDs, rec.ID)
	}

	// Symbols of this file that this parse did not produce are stale:
	// deleted, moved or renamed spans.
	staleCount, err := tx.DeleteStaleSymbols(ctx, projectID, fs.relPath, keepIDs)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	written.Add(int32(len(keepIDs)))
	pruned.Add(int32(staleCount))
	return nil
}

// embedSymbols requests embeddings in batches. A failed batch degrades to
// nil embeddings for its symbols; the symbols are still stored and stay
// reachable through lexical search.
func (idx *Indexer) embedSymbols(ctx context.Context, fs *fileSymbols, embedFail *atomic.Int32) [][]byte {
	embeddings := make([][]byte, len(fs.symbols))

	for start := 0; start < len(fs.symbols); start += embedder.DefaultBatchSize {
		end := start + embedder.DefaultBatchSize
		if end > len(fs.symbols) {
			end = len(fs.symbols)
		}

		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = fs.symbols[i].EmbeddingText()
		}

		resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			embedFail.Add(int32(end - start))
			idx.logger.Warn("embedding batch failed",
				"file", fs.relPath, "symbols", end-start, "error", err)
			continue
		}

		for i, emb := range resp.Embeddings {
			embeddings[start+i] = storage.SerializeVector(emb.Vector)
		}
	}

	return embeddings
}
