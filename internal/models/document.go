package models

// Document is one unit of domain text from the knowledge corpus.
type Document struct {
	ID       string
	Source   string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

// Chunk is a slice of a Document sized for question synthesis and retrieval.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Content    string
	Embedding  []float32
}
