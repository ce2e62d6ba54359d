// Package corpus builds the raw NER annotation corpus from a UniProt Swiss-Prot dump.
package corpus

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/xkilldash9x/mindfields/api/schemas"
	"github.com/xkilldash9x/mindfields/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options controls a corpus build.
type Options struct {
	// MaxSize caps the number of corpus entries; 0 means unlimited.
	MaxSize int
	// MaxLength keeps only entries whose sequence is strictly shorter.
	MaxLength        int
	BufferSize       int
	Workers          int
	ProgressInterval time.Duration
}

// OptionsFromConfig maps the corpus section of the configuration.
func OptionsFromConfig(cfg config.CorpusConfig) Options {
	return Options{
		MaxSize:          cfg.MaxSize,
		MaxLength:        cfg.MaxLength,
		BufferSize:       cfg.BufferSize,
		Workers:          cfg.Workers,
		ProgressInterval: cfg.ProgressInterval,
	}
}

// Stats counts what a build looked at.
type Stats struct {
	EntriesRead       int
	EntriesConsidered int
	EntriesSkipped    int
	Sentences         int
	Added             int
	LimitReached      bool
	Interrupted       bool
}

// Result is the corpus in scan order plus build statistics.
type Result struct {
	Entries []schemas.CorpusEntry
	Stats   Stats
}

// Source is the input of a build. Position drives progress reporting.
type Source interface {
	io.Reader
	Position() int64
}

// Builder turns UniProt entries into corpus entries.
type Builder struct {
	opts     Options
	logger   *zap.Logger
	progress *rate.Sometimes
}

// NewBuilder creates a Builder. Non-positive worker counts fall back to one worker.
func NewBuilder(opts Options, logger *zap.Logger) *Builder {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Builder{
		opts:     opts,
		logger:   logger.Named("corpus"),
		progress: &rate.Sometimes{Interval: opts.ProgressInterval},
	}
}

type chunk struct {
	seq int
	raw []byte
}

type parsed struct {
	seq   int
	entry *Entry
	err   error
}

// Build scans src and returns the corpus. Cancelling ctx stops the scan and
// returns what was collected so far with Stats.Interrupted set and a nil error.
func (b *Builder) Build(ctx context.Context, src Source, size int64) (*Result, error) {
	stopCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(stopCtx)

	chunks := make(chan chunk, b.opts.Workers)
	results := make(chan parsed, b.opts.Workers)

	// Scanner.
	g.Go(func() error {
		defer close(chunks)
		scanner := newEntryScanner(src, b.opts.BufferSize)
		seq := 0
		for scanner.Scan() {
			// The scanner reuses its buffer.
			raw := append([]byte(nil), scanner.Bytes()...)
			select {
			case chunks <- chunk{seq: seq, raw: raw}:
				seq++
			case <-gctx.Done():
				return nil
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read uniprot entries: %w", scanErr(err))
		}
		return nil
	})

	// Parse workers.
	var workers sync.WaitGroup
	for i := 0; i < b.opts.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for c := range chunks {
				entry, err := ParseEntry(c.raw)
				select {
				case results <- parsed{seq: c.seq, entry: entry, err: err}:
				case <-gctx.Done():
					return nil
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	res := &Result{}
	seen := make(map[string]struct{})
	pending := make(map[int]parsed)
	next := 0

	// Sequencer: entries are applied in scan order so the output does not depend on scheduling.
collect:
	for p := range results {
		pending[p.seq] = p
		for {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			b.apply(res, seen, cur)
			b.progress.Do(func() { b.logProgress(res, src, size) })
			if res.Stats.LimitReached {
				stop()
				break collect
			}
		}
	}
	// Workers blocked on a send return once stopCtx is done; the drain ends when they have.
	for range results {
	}

	if err := g.Wait(); err != nil {
		return res, err
	}
	if ctx.Err() != nil && !res.Stats.LimitReached {
		res.Stats.Interrupted = true
		b.logger.Warn("Interruption requested, keeping the partial corpus", zap.Int("added", res.Stats.Added))
	}
	b.logger.Info("Corpus built",
		zap.Int("added", res.Stats.Added),
		zap.Int("uniprot_entries", res.Stats.EntriesRead),
		zap.Int("sentences", res.Stats.Sentences),
		zap.Bool("limit_reached", res.Stats.LimitReached))
	return res, nil
}

func (b *Builder) apply(res *Result, seen map[string]struct{}, p parsed) {
	res.Stats.EntriesRead++
	if p.err != nil {
		res.Stats.EntriesSkipped++
		b.logger.Warn("Skipping unparsable uniprot entry", zap.Int("entry", p.seq), zap.Error(p.err))
		return
	}
	if p.entry.Length >= b.opts.MaxLength {
		return
	}
	res.Stats.EntriesConsidered++

	b.addTexts(res, seen, p.entry, p.entry.Comments, schemas.TextTypeComment)
	b.addTexts(res, seen, p.entry, p.entry.Titles, schemas.TextTypeArticle)
}

func (b *Builder) addTexts(res *Result, seen map[string]struct{}, e *Entry, texts []string, typ schemas.CorpusTextType) {
	for _, text := range texts {
		for _, sentence := range Sentences(text) {
			if res.Stats.LimitReached {
				return
			}
			res.Stats.Sentences++
			if !IsUseful(sentence) {
				continue
			}
			if _, dup := seen[sentence]; dup {
				continue
			}
			seen[sentence] = struct{}{}
			res.Entries = append(res.Entries, schemas.CorpusEntry{
				Text: sentence,
				Meta: schemas.CorpusMeta{Source: schemas.SourceUniprot, ID: e.Accession, Type: typ},
			})
			res.Stats.Added++
			if b.opts.MaxSize > 0 && res.Stats.Added >= b.opts.MaxSize {
				res.Stats.LimitReached = true
			}
		}
	}
}

func (b *Builder) logProgress(res *Result, src Source, size int64) {
	fields := []zap.Field{
		zap.Int("uniprot_entries", res.Stats.EntriesRead),
		zap.Int("added", res.Stats.Added),
		zap.Int("sentences", res.Stats.Sentences),
		zap.Float64("buffer_mb", float64(b.opts.BufferSize)*1e-6),
	}
	if size > 0 {
		fields = append(fields, zap.String("done", fmt.Sprintf("%5.1f%%", float64(src.Position())/float64(size)*100)))
	}
	b.logger.Info("Reading uniprot entries", fields...)
}
