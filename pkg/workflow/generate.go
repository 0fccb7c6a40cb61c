package workflow

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/internal/types"
	"github.com/zavalabs/raft/pkg/chunker"
	"github.com/zavalabs/raft/pkg/dataset"
	"github.com/zavalabs/raft/pkg/generator"
	"github.com/zavalabs/raft/pkg/index"
	"github.com/zavalabs/raft/pkg/llm"
	"github.com/zavalabs/raft/pkg/loader"
	"github.com/zavalabs/raft/pkg/state"
)

// GenerateOutput reports what the gen stage produced.
type GenerateOutput struct {
	Documents   int
	Chunks      int
	Examples    int
	Report      models.GenerationReport
	DatasetPath string
	TrainPath   string
	ValidPath   string
	EvalPath    string
}

// Generate loads the corpus, chunks it, synthesizes examples with the
// teacher, splits them, and writes the dataset files the later stages read.
func (r *Runner) Generate(ctx context.Context) (*GenerateOutput, error) {
	if err := r.require(models.StageChecked, "gen"); err != nil {
		return nil, err
	}

	docs, err := r.loadCorpus(ctx)
	if err != nil {
		return nil, err
	}

	ck, err := chunker.NewWithConfig(chunker.ChunkerConfig{
		ChunkSize:    r.Config.Dataset.ChunkSize,
		ChunkOverlap: r.Config.Dataset.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}
	chunks, err := ck.Chunk(docs)
	if err != nil {
		return nil, err
	}
	r.log.Info("corpus chunked", "documents", len(docs), "chunks", len(chunks))

	teacher, err := llm.ForRole(models.RoleTeacher, r.State.Getenv, 0.7, 0)
	if err != nil {
		return nil, err
	}

	var embedder types.EmbeddingModel
	if r.Config.Dataset.Sampling == generator.SamplingSemantic {
		e, err := llm.NewEmbedder(r.State.Getenv)
		if err != nil {
			return nil, err
		}
		embedder = e
	}

	idx, closeIdx, err := r.buildIndex(ctx)
	if err != nil {
		return nil, err
	}
	defer closeIdx()

	gen, err := generator.New(teacher, embedder, idx, generator.GeneratorConfig{
		QuestionsPerChunk: r.Config.Dataset.Questions,
		Distractors:       r.Config.Dataset.Distractors,
		Workers:           r.Config.Dataset.Workers,
		RateLimit:         r.Config.Limits.RateLimit,
		QAThreshold:       r.Config.Dataset.QAThreshold,
		Sampling:          r.Config.Dataset.Sampling,
	})
	if err != nil {
		return nil, err
	}
	if r.OnProgress != nil {
		gen.OnProgress = func(done, total int) { r.OnProgress("generating", done, total) }
	}

	dir := filepath.Join("data", r.Config.Dataset.Name)

	examples, report, err := gen.Generate(ctx, chunks)
	if err != nil {
		// On cancellation the completed examples still get persisted so the
		// work is not lost; the stage itself stays incomplete.
		if len(examples) > 0 && ctx.Err() != nil {
			partialPath := filepath.Join(dir, "dataset.partial.jsonl")
			if writeErr := dataset.WriteJSONL(partialPath, examples); writeErr == nil {
				r.log.Warn("generation cancelled, partial dataset saved",
					"examples", len(examples), "path", partialPath)
			}
		}
		return nil, err
	}
	for _, warning := range report.Warnings {
		r.warn("gen: %s", warning)
	}
	if report.Shortfall > 0 {
		r.warn("gen: %d fewer examples than requested", report.Shortfall)
	}

	splits, err := dataset.Split(examples,
		r.Config.Dataset.TrainSplit, r.Config.Dataset.ValidSplit, int64(r.Config.Finetune.Seed))
	if err != nil {
		return nil, err
	}

	out := &GenerateOutput{
		Documents:   len(docs),
		Chunks:      len(chunks),
		Examples:    len(examples),
		Report:      report,
		DatasetPath: filepath.Join(dir, "dataset.jsonl"),
		TrainPath:   filepath.Join(dir, "train.jsonl"),
		ValidPath:   filepath.Join(dir, "valid.jsonl"),
		EvalPath:    filepath.Join(dir, "eval.jsonl"),
	}

	seed := int64(r.Config.Finetune.Seed)
	if err := dataset.WriteJSONL(out.DatasetPath, examples); err != nil {
		return nil, err
	}
	if err := dataset.WriteJSONL(out.TrainPath, dataset.ToChatRecords(splits.Train, seed)); err != nil {
		return nil, err
	}
	if err := dataset.WriteJSONL(out.ValidPath, dataset.ToChatRecords(splits.Valid, seed)); err != nil {
		return nil, err
	}
	if err := dataset.WriteJSONL(out.EvalPath, splits.Eval); err != nil {
		return nil, err
	}

	domain := r.Config.Dataset.DocsURL
	if domain == "" {
		domain = r.Config.Dataset.DocsPath
	}
	meta := models.DatasetMeta{
		Name:        r.Config.Dataset.Name,
		Size:        len(examples),
		Domain:      domain,
		Questions:   r.Config.Dataset.Questions,
		Distractors: r.Config.Dataset.Distractors,
		ChunkSize:   r.Config.Dataset.ChunkSize,
		Sampling:    r.Config.Dataset.Sampling,
	}
	if err := dataset.WriteMeta(filepath.Join(dir, "meta.json"), meta); err != nil {
		return nil, err
	}

	r.State.Set(state.KeyDatasetPath, out.DatasetPath)
	r.State.Set(state.KeyTrainPath, out.TrainPath)
	r.State.Set(state.KeyValidPath, out.ValidPath)
	r.State.Set(state.KeyEvalPath, out.EvalPath)
	r.State.MarkStage(models.StageGenerated)
	if err := r.State.Save(); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *Runner) loadCorpus(ctx context.Context) ([]models.Document, error) {
	var l types.Loader
	var err error

	if r.Config.Dataset.DocsURL != "" {
		l, err = loader.NewWebLoader(loader.WebLoaderConfig{
			BaseURL:   r.Config.Dataset.DocsURL,
			RateLimit: r.Config.Limits.RateLimit,
			OnProgress: func(url string) {
				if r.OnProgress != nil {
					r.OnProgress("crawling "+url, -1, -1)
				}
			},
		})
	} else {
		if r.Config.Dataset.DocsPath == "" {
			return nil, &models.ConfigurationError{Field: "dataset.docs_path", Reason: "no corpus source configured"}
		}
		l, err = loader.NewFSLoader(loader.FSLoaderConfig{Path: r.Config.Dataset.DocsPath})
	}
	if err != nil {
		return nil, err
	}
	return l.Load(ctx)
}

// buildIndex picks the distractor index backend: pgvector when a database is
// configured, in-memory otherwise.
func (r *Runner) buildIndex(ctx context.Context) (types.ChunkIndex, func(), error) {
	if r.Config.Database.URL != "" {
		vi, err := index.NewVectorIndex(ctx, index.VectorIndexConfig{
			ConnString: r.Config.Database.URL,
			TableName:  r.Config.Database.TableName,
			VectorDim:  r.Config.Database.VectorDim,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open vector index: %w", err)
		}
		return vi, vi.Close, nil
	}
	return index.NewMemoryIndex(int64(r.Config.Finetune.Seed)), func() {}, nil
}
