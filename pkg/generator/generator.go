// Package generator produces synthetic question/answer examples from corpus
// chunks using the teacher model, with distractor contexts sampled from the
// rest of the corpus.
package generator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/internal/types"
	"github.com/zavalabs/raft/pkg/logger"
)

const (
	SamplingRandom   = "random"
	SamplingSemantic = "semantic"

	// One initial attempt plus two retries per teacher call.
	maxAttempts = 3

	embedBatchSize = 64
)

type GeneratorConfig struct {
	QuestionsPerChunk int
	Distractors       int
	Workers           int
	RateLimit         float64
	QAThreshold       int
	Sampling          string
}

type Generator struct {
	config   GeneratorConfig
	teacher  types.ChatModel
	embedder types.EmbeddingModel
	index    types.ChunkIndex
	limiter  *rate.Limiter
	log      *logger.Logger

	// OnProgress is called after each chunk finishes, successfully or not.
	OnProgress func(done, total int)
}

func New(teacher types.ChatModel, embedder types.EmbeddingModel, index types.ChunkIndex, config GeneratorConfig) (*Generator, error) {
	if teacher == nil {
		return nil, fmt.Errorf("teacher model is required")
	}
	if index == nil {
		return nil, fmt.Errorf("chunk index is required")
	}
	if config.QuestionsPerChunk <= 0 {
		config.QuestionsPerChunk = 2
	}
	if config.Distractors < 0 {
		return nil, fmt.Errorf("distractor count must not be negative")
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 10
	}
	if config.Sampling == "" {
		config.Sampling = SamplingRandom
	}
	if config.Sampling != SamplingRandom && config.Sampling != SamplingSemantic {
		return nil, fmt.Errorf("unknown sampling strategy %q", config.Sampling)
	}
	if config.Sampling == SamplingSemantic && embedder == nil {
		return nil, fmt.Errorf("semantic sampling requires an embedding model")
	}

	return &Generator{
		config:   config,
		teacher:  teacher,
		embedder: embedder,
		index:    index,
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		log:      logger.New("generator"),
	}, nil
}

type chunkResult struct {
	examples []models.SyntheticExample
	skipped  bool
	warning  string
}

// Generate runs question and answer synthesis over all chunks concurrently,
// then deduplicates at the barrier and attaches distractors. Failed chunks
// are skipped and reported, never fatal.
func (g *Generator) Generate(ctx context.Context, chunks []models.Chunk) ([]models.SyntheticExample, models.GenerationReport, error) {
	report := models.GenerationReport{}

	if len(chunks) == 0 {
		return nil, report, fmt.Errorf("no chunks to generate from")
	}

	if err := g.populateIndex(ctx, chunks); err != nil {
		return nil, report, err
	}

	byID := make(map[string]models.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}

	results := make([]chunkResult, len(chunks))
	var done int
	var mu sync.Mutex

	// Cancellation stops dispatching new chunks but lets the in-flight ones
	// finish, so their examples still make it into the partial dataset.
	callCtx := context.WithoutCancel(ctx)

	var group errgroup.Group
	group.SetLimit(g.config.Workers)

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		i, chunk := i, chunk
		group.Go(func() error {
			results[i] = g.processChunk(callCtx, chunk)

			mu.Lock()
			done++
			current := done
			mu.Unlock()
			if g.OnProgress != nil {
				g.OnProgress(current, len(chunks))
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, report, err
	}

	// Barrier: everything collected, now dedupe questions case-insensitively
	// before distractor assembly.
	seen := make(map[string]bool)
	var accepted []models.SyntheticExample
	for _, result := range results {
		if result.skipped {
			report.SkippedChunks++
			if result.warning != "" {
				report.Warnings = append(report.Warnings, result.warning)
			}
			continue
		}
		for _, example := range result.examples {
			key := normalizeQuestion(example.Question)
			if seen[key] {
				report.Duplicates++
				continue
			}
			seen[key] = true
			accepted = append(accepted, example)
		}
	}

	if g.config.QAThreshold > 0 && len(accepted) > g.config.QAThreshold {
		accepted = accepted[:g.config.QAThreshold]
	}

	for i := range accepted {
		if err := g.attachDistractors(callCtx, &accepted[i], byID); err != nil {
			return nil, report, err
		}
	}

	report.Accepted = len(accepted)
	requested := len(chunks) * g.config.QuestionsPerChunk
	if g.config.QAThreshold > 0 && g.config.QAThreshold < requested {
		requested = g.config.QAThreshold
	}
	if report.Accepted < requested {
		report.Shortfall = requested - report.Accepted
	}

	g.log.Info("generation finished",
		"accepted", report.Accepted,
		"duplicates", report.Duplicates,
		"skipped_chunks", report.SkippedChunks,
		"shortfall", report.Shortfall)

	if err := ctx.Err(); err != nil {
		// Partial results go back to the caller along with the cancellation.
		return accepted, report, err
	}
	if report.Accepted == 0 {
		return nil, report, fmt.Errorf("generation produced no examples")
	}
	return accepted, report, nil
}

// populateIndex adds all chunks to the distractor index, embedding them first
// when semantic sampling is enabled.
func (g *Generator) populateIndex(ctx context.Context, chunks []models.Chunk) error {
	if g.config.Sampling == SamplingSemantic {
		for start := 0; start < len(chunks); start += embedBatchSize {
			end := start + embedBatchSize
			if end > len(chunks) {
				end = len(chunks)
			}
			batch := chunks[start:end]

			texts := make([]string, len(batch))
			for i, chunk := range batch {
				texts[i] = chunk.Content
			}

			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
			embeddings, err := g.embedder.CreateEmbedding(ctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed chunks: %w", err)
			}
			if len(embeddings) != len(batch) {
				return fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(embeddings), len(batch))
			}
			for i := range batch {
				chunks[start+i].Embedding = embeddings[i]
			}
		}
	}
	return g.index.Add(ctx, chunks)
}

func (g *Generator) processChunk(ctx context.Context, chunk models.Chunk) chunkResult {
	questions, err := g.generateQuestions(ctx, chunk)
	if err != nil {
		g.log.Warn("skipping chunk", "chunk", chunk.ID, "error", err)
		return chunkResult{skipped: true, warning: fmt.Sprintf("chunk %s: %v", chunk.ID, err)}
	}

	var examples []models.SyntheticExample
	for _, question := range questions {
		answer, err := g.generateAnswer(ctx, chunk, question)
		if err != nil {
			g.log.Warn("dropping question", "chunk", chunk.ID, "error", err)
			continue
		}
		examples = append(examples, models.SyntheticExample{
			ID:            uuid.NewString(),
			Question:      question,
			OracleID:      chunk.ID,
			OracleContext: chunk.Content,
			Answer:        answer,
		})
	}

	if len(examples) == 0 {
		return chunkResult{skipped: true, warning: fmt.Sprintf("chunk %s: no answerable questions", chunk.ID)}
	}
	return chunkResult{examples: examples}
}

func (g *Generator) generateQuestions(ctx context.Context, chunk models.Chunk) ([]string, error) {
	system := "You are a synthetic data generator. Given a passage, you produce standalone questions that the passage fully answers."
	user := fmt.Sprintf(
		"Generate exactly %d questions that are fully answered by the passage below. "+
			"Return one question per line with no numbering. Every question must end with a question mark.\n\nPassage:\n%s",
		g.config.QuestionsPerChunk, chunk.Content)

	want := g.config.QuestionsPerChunk
	var best []string
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		raw, err := g.teacher.Complete(ctx, system, user)
		if err != nil {
			lastErr = err
			continue
		}
		// A batch that comes up short after dropping duplicates is rejected
		// and regenerated; the largest batch is kept in case no attempt
		// reaches the requested count.
		questions := dedupeQuestions(parseQuestions(raw))
		if len(questions) >= want {
			return questions[:want], nil
		}
		if len(questions) > len(best) {
			best = questions
		}
		lastErr = fmt.Errorf("%d of %d requested questions", len(questions), want)
	}
	if len(best) > 0 {
		g.log.Warn("accepting question shortfall",
			"chunk", chunk.ID, "got", len(best), "want", want)
		return best, nil
	}
	return nil, fmt.Errorf("question generation failed after %d attempts: %w", maxAttempts, lastErr)
}

func (g *Generator) generateAnswer(ctx context.Context, chunk models.Chunk, question string) (string, error) {
	system := "You answer questions using only the provided context. " +
		"Reason step by step, quoting the context where relevant, then state the final answer on its own line prefixed with \"Answer:\"."
	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", chunk.Content, question)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
		answer, err := g.teacher.Complete(ctx, system, user)
		if err != nil {
			lastErr = err
			continue
		}
		answer = strings.TrimSpace(answer)
		if answer != "" {
			return answer, nil
		}
		lastErr = fmt.Errorf("empty answer")
	}
	return "", fmt.Errorf("answer generation failed after %d attempts: %w", maxAttempts, lastErr)
}

// attachDistractors samples non-oracle chunks for the example, by embedding
// similarity or uniformly depending on the configured strategy.
func (g *Generator) attachDistractors(ctx context.Context, example *models.SyntheticExample, byID map[string]models.Chunk) error {
	if g.config.Distractors == 0 {
		return nil
	}

	var sampled []models.Chunk
	switch g.config.Sampling {
	case SamplingSemantic:
		oracle, ok := byID[example.OracleID]
		if !ok || len(oracle.Embedding) == 0 {
			sampled = g.index.Random(g.config.Distractors, example.OracleID)
			break
		}
		neighbors, err := g.index.Neighbors(ctx, oracle.Embedding, g.config.Distractors, example.OracleID)
		if err != nil {
			return fmt.Errorf("failed to sample semantic distractors: %w", err)
		}
		sampled = neighbors
	default:
		sampled = g.index.Random(g.config.Distractors, example.OracleID)
	}

	for _, chunk := range sampled {
		example.DistractorIDs = append(example.DistractorIDs, chunk.ID)
		example.Distractors = append(example.Distractors, chunk.Content)
	}
	return nil
}

// normalizeQuestion builds the dedupe key: lowercase with internal
// whitespace collapsed.
func normalizeQuestion(question string) string {
	return strings.ToLower(strings.Join(strings.Fields(question), " "))
}

func dedupeQuestions(questions []string) []string {
	seen := make(map[string]bool, len(questions))
	var out []string
	for _, question := range questions {
		key := normalizeQuestion(question)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, question)
	}
	return out
}

func parseQuestions(raw string) []string {
	var questions []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasSuffix(line, "?") {
			continue
		}
		questions = append(questions, line)
	}
	return questions
}
