// Package preprocess implements the offline term-preprocessing pipeline
// (spec 4.11, C11): extract -> deduplicate -> database-lookup ->
// batch-translate -> ingest. It amortizes per-segment term translation cost
// across a whole dataset by resolving each unique term exactly once before
// any layer runs against the dataset.
package preprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/hieromt/hieromt/internal/llmclient"
	"github.com/hieromt/hieromt/internal/termbase"
	"github.com/hieromt/hieromt/pkg/provider/llm"
	"github.com/hieromt/hieromt/pkg/types"
)

// Report summarizes one preprocessing run over a dataset (spec 4.11 stage 5).
type Report struct {
	TotalSegments   int
	UniqueTerms     int
	DBHits          int
	NewTranslations int
	IngestErrors    int

	// FailedTranslations holds the normalized source forms whose batch
	// translation failed twice (initial attempt plus one retry), or that a
	// successful batch reply left out or mapped to an empty string, and were
	// therefore never ingested.
	FailedTranslations []string
}

// Options configures [Run]. Zero values fall back to the spec defaults.
type Options struct {
	// ExtractConcurrency bounds concurrent MonoExtract calls. Default 10.
	ExtractConcurrency int

	// TranslateConcurrency bounds concurrent batch-translate calls, kept
	// lower than ExtractConcurrency to avoid context-window pressure.
	// Default 5.
	TranslateConcurrency int

	// BatchSize caps how many flagged terms one translate call covers.
	// Default 20.
	BatchSize int

	Log *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ExtractConcurrency <= 0 {
		o.ExtractConcurrency = 10
	}
	if o.TranslateConcurrency <= 0 {
		o.TranslateConcurrency = 5
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	return o
}

type extraction struct {
	term       string
	importance float64
	context    string
}

type monoExtractTerm struct {
	Term       string  `json:"term"`
	Importance float64 `json:"importance"`
}

type monoExtractResult struct {
	Terms []monoExtractTerm `json:"terms"`
}

// mergedTerm is one deduplicated term group (spec 4.11 stage 2).
type mergedTerm struct {
	normalized string
	display    string // first-seen original casing, used in translation prompts and as SourceForm
	count      int
	confidence float64
	contexts   []string // at most 2, longest-first
}

// Run executes the full extract -> deduplicate -> lookup -> translate ->
// ingest pipeline over segments, populating tb. All segments must share the
// same language pair.
func Run(ctx context.Context, client *llmclient.Client, tb *termbase.Termbase, segments []types.Segment, opts Options) (Report, error) {
	opts = opts.withDefaults()
	report := Report{TotalSegments: len(segments)}
	if len(segments) == 0 {
		return report, nil
	}
	pair := segments[0].Pair

	extracted := batchExtract(ctx, client, segments, opts)
	merged := deduplicate(extracted)
	report.UniqueTerms = len(merged)

	byNormalized := make(map[string]*mergedTerm, len(merged))
	var needsTranslation []*mergedTerm
	resolved := make(map[string]string, len(merged))

	for _, m := range merged {
		byNormalized[m.normalized] = m

		hits, err := tb.LookupExactFuzzy(ctx, m.display, pair)
		if err != nil {
			opts.Log.WarnContext(ctx, "preprocess: db lookup failed, flagging term for translation", "term", m.display, "error", err)
			needsTranslation = append(needsTranslation, m)
			continue
		}
		if len(hits) == 0 {
			needsTranslation = append(needsTranslation, m)
			continue
		}
		report.DBHits++
		resolved[m.normalized] = hits[0].Entry.TargetForm
	}

	translated, failed := batchTranslate(ctx, client, needsTranslation, pair, opts)
	for normalized, target := range translated {
		resolved[normalized] = target
		report.NewTranslations++
	}
	report.FailedTranslations = failed

	for normalized, target := range resolved {
		m := byNormalized[normalized]
		entry := types.TermEntry{
			SourceForm:      m.display,
			TargetForm:      target,
			Pair:            pair,
			Confidence:      m.confidence,
			OccurrenceCount: m.count,
			ExampleContexts: m.contexts,
		}
		if err := tb.Ingest(ctx, entry); err != nil {
			report.IngestErrors++
			opts.Log.WarnContext(ctx, "preprocess: ingest failed", "term", m.display, "error", err)
		}
	}

	return report, nil
}

// batchExtract runs MonoExtract across every segment under opts'
// concurrency cap. A segment whose extraction fails is logged and skipped;
// per spec 4.11 this never aborts the run.
func batchExtract(ctx context.Context, client *llmclient.Client, segments []types.Segment, opts Options) []extraction {
	var (
		mu  sync.Mutex
		all []extraction
		g   errgroup.Group
	)
	g.SetLimit(opts.ExtractConcurrency)

	for _, seg := range segments {
		seg := seg
		g.Go(func() error {
			var result monoExtractResult
			req := llm.CompletionRequest{
				SystemPrompt: "You are a legal-domain terminology extraction agent. Identify salient source-language legal terms: proper nouns, specialized nominals, and modal/deontic anchors. Respond with JSON: {\"terms\":[{\"term\":string,\"importance\":number in [0,1]}]}.",
				Messages:     []types.Message{{Role: "user", Content: seg.Source}},
			}
			if err := client.CompleteJSON(ctx, req, &result); err != nil {
				opts.Log.WarnContext(ctx, "preprocess: MonoExtract failed, skipping segment", "segment_id", seg.ID, "error", err)
				return nil
			}
			mu.Lock()
			for _, t := range result.Terms {
				all = append(all, extraction{term: t.Term, importance: t.Importance, context: seg.Source})
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // batchExtract never returns a non-nil error; failures are recorded by logging above
	return all
}

// deduplicate merges extractions by normalized source form, summing
// occurrence counts, keeping the maximum confidence, and retaining the two
// longest contexts per group (spec 4.11 stage 2). Output order follows each
// group's first occurrence in extracted.
func deduplicate(extracted []extraction) []*mergedTerm {
	byKey := make(map[string]*mergedTerm)
	var order []string

	for _, e := range extracted {
		key := normalize(e.term)
		if key == "" {
			continue
		}
		m, ok := byKey[key]
		if !ok {
			m = &mergedTerm{normalized: key, display: e.term}
			byKey[key] = m
			order = append(order, key)
		}
		m.count++
		if e.importance > m.confidence {
			m.confidence = e.importance
		}
		m.contexts = append(m.contexts, e.context)
	}

	merged := make([]*mergedTerm, 0, len(order))
	for _, key := range order {
		m := byKey[key]
		m.contexts = topTwoLongest(m.contexts)
		merged = append(merged, m)
	}
	return merged
}

func topTwoLongest(contexts []string) []string {
	sort.SliceStable(contexts, func(i, j int) bool { return len(contexts[i]) > len(contexts[j]) })
	if len(contexts) > 2 {
		contexts = contexts[:2]
	}
	return contexts
}

// normalize case-folds, collapses whitespace, and strips punctuation from
// term, the grouping key for deduplicate.
func normalize(term string) string {
	var b strings.Builder
	prevSpace := true // suppress leading space
	for _, r := range strings.ToLower(term) {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteRune(' ')
			}
			prevSpace = true
		case unicode.IsPunct(r):
			// dropped
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// batchTranslate groups terms into batches of opts.BatchSize and resolves
// each batch with a single LLM call under opts.TranslateConcurrency. A
// batch that fails is retried once; if it fails again every term in it is
// reported as failed rather than raised (spec 4.11 failure semantics).
func batchTranslate(ctx context.Context, client *llmclient.Client, terms []*mergedTerm, pair types.LanguagePair, opts Options) (resolved map[string]string, failed []string) {
	if len(terms) == 0 {
		return nil, nil
	}

	resolved = make(map[string]string)
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(opts.TranslateConcurrency)

	for _, batch := range chunkTerms(terms, opts.BatchSize) {
		batch := batch
		g.Go(func() error {
			result, err := translateBatch(ctx, client, batch, pair)
			if err != nil {
				result, err = translateBatch(ctx, client, batch, pair)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				opts.Log.WarnContext(ctx, "preprocess: batch translate failed after retry, recording translation_failed", "batch_size", len(batch), "error", err)
				for _, m := range batch {
					failed = append(failed, m.normalized)
				}
				return nil
			}
			for _, m := range batch {
				target, ok := result[m.display]
				if !ok || target == "" {
					failed = append(failed, m.normalized)
					continue
				}
				resolved[m.normalized] = target
			}
			return nil
		})
	}
	_ = g.Wait() // batchTranslate never returns a non-nil error; failures are recorded in failed above
	return resolved, failed
}

func translateBatch(ctx context.Context, client *llmclient.Client, batch []*mergedTerm, pair types.LanguagePair) (map[string]string, error) {
	var result map[string]string
	req := llm.CompletionRequest{
		SystemPrompt: "You are a legal-domain term translation agent. Translate each listed source term into its standard target-language legal equivalent, using the supplied contexts to disambiguate. Respond with a single JSON object mapping each source term to its translation, no commentary.",
		Messages:     []types.Message{{Role: "user", Content: batchPrompt(batch, pair)}},
	}
	if err := client.CompleteJSON(ctx, req, &result); err != nil {
		return nil, fmt.Errorf("preprocess: batch translate: %w", err)
	}
	return result, nil
}

func batchPrompt(batch []*mergedTerm, pair types.LanguagePair) string {
	type termPrompt struct {
		Term     string   `json:"term"`
		Contexts []string `json:"contexts"`
	}
	items := make([]termPrompt, len(batch))
	for i, m := range batch {
		items[i] = termPrompt{Term: m.display, Contexts: m.contexts}
	}
	b, _ := json.Marshal(items)
	return fmt.Sprintf("Language pair: %s\nTerms:\n%s", pair, b)
}

func chunkTerms(terms []*mergedTerm, size int) [][]*mergedTerm {
	var batches [][]*mergedTerm
	for i := 0; i < len(terms); i += size {
		end := i + size
		if end > len(terms) {
			end = len(terms)
		}
		batches = append(batches, terms[i:end])
	}
	return batches
}
