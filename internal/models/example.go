package models

// SyntheticExample is one generated training record: a question, the oracle
// chunk that answers it, sampled distractor chunks, and the reference answer.
type SyntheticExample struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	OracleID      string   `json:"oracle_id"`
	OracleContext string   `json:"oracle_context"`
	DistractorIDs []string `json:"distractor_ids,omitempty"`
	Distractors   []string `json:"distractors,omitempty"`
	Answer        string   `json:"cot_answer"`
}

// DatasetMeta describes a generated dataset.
type DatasetMeta struct {
	Name        string `json:"name"`
	Size        int    `json:"size"`
	Domain      string `json:"domain,omitempty"`
	Questions   int    `json:"questions_per_chunk"`
	Distractors int    `json:"distractors"`
	ChunkSize   int    `json:"chunk_size"`
	Sampling    string `json:"sampling"`
}

// GenerationReport summarizes non-fatal issues from a generation run so the
// operator can judge dataset quality.
type GenerationReport struct {
	Accepted      int
	Duplicates    int
	SkippedChunks int
	Shortfall     int
	Warnings      []string
}

// EvaluationResult is the judge's verdict for one model answer.
type EvaluationResult struct {
	ExampleID   string  `json:"id"`
	Model       string  `json:"model"`
	Answer      string  `json:"answer"`
	Correctness float64 `json:"correctness"`
	Precision   float64 `json:"precision"`
	Parsed      bool    `json:"parsed"`
	RawVerdict  string  `json:"raw_verdict,omitempty"`
}

// EvaluationSummary aggregates parsed results for one model. Unparsed judge
// outputs are counted, never scored as zero.
type EvaluationSummary struct {
	Model             string  `json:"model"`
	Scored            int     `json:"scored"`
	Unparsed          int     `json:"unparsed"`
	Failed            int     `json:"failed"`
	MeanCorrectness   float64 `json:"mean_correctness"`
	MedianCorrectness float64 `json:"median_correctness"`
	MeanPrecision     float64 `json:"mean_precision"`
	MedianPrecision   float64 `json:"median_precision"`
}
