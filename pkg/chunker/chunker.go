// Package chunker splits knowledge documents into token-bounded chunks that
// downstream generation treats as oracle contexts.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"github.com/zavalabs/raft/internal/models"
)

type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
	MinTokens    int
	Encoding     string
}

type Chunker struct {
	config   ChunkerConfig
	encoding *tiktoken.Tiktoken
}

func NewWithConfig(config ChunkerConfig) (*Chunker, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 512
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 64
	}
	if config.MinTokens == 0 {
		config.MinTokens = 20
	}
	if config.Encoding == "" {
		config.Encoding = "cl100k_base"
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", config.ChunkOverlap, config.ChunkSize)
	}

	encoding, err := tiktoken.GetEncoding(config.Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding: %w", err)
	}

	return &Chunker{
		config:   config,
		encoding: encoding,
	}, nil
}

// Chunk splits each document into sentence-aligned chunks of at most
// ChunkSize tokens, with ChunkOverlap tokens of trailing context carried
// into the next chunk.
func (c *Chunker) Chunk(docs []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk

	for _, doc := range docs {
		text := normalize(doc.Content)
		if text == "" {
			continue
		}

		index := 0
		for _, content := range c.split(text) {
			if c.CountTokens(content) < c.config.MinTokens {
				continue
			}
			chunks = append(chunks, models.Chunk{
				ID:         uuid.NewString(),
				DocumentID: doc.ID,
				Index:      index,
				Content:    content,
			})
			index++
		}
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced; documents may be empty or below the minimum length")
	}
	return chunks, nil
}

// CountTokens reports the token length of text under the configured encoding.
func (c *Chunker) CountTokens(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

func (c *Chunker) split(text string) []string {
	sentences := splitSentences(text)

	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(strings.Join(current, " ")))

		// Carry trailing sentences into the next chunk as overlap.
		var carry []string
		carryTokens := 0
		for i := len(current) - 1; i >= 0; i-- {
			tokens := c.CountTokens(current[i])
			if carryTokens+tokens > c.config.ChunkOverlap {
				break
			}
			carry = append([]string{current[i]}, carry...)
			carryTokens += tokens
		}
		current = carry
		currentTokens = carryTokens
	}

	for _, sentence := range sentences {
		tokens := c.CountTokens(sentence)
		if currentTokens+tokens > c.config.ChunkSize && currentTokens > 0 {
			flush()
		}
		current = append(current, sentence)
		currentTokens += tokens
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.TrimSpace(strings.Join(current, " ")))
	}
	return chunks
}

func normalize(text string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

func splitSentences(text string) []string {
	enders := []string{". ", "! ", "? "}
	var sentences []string

	current := strings.Builder{}
	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])
		for _, ender := range enders {
			if strings.HasSuffix(current.String(), ender) {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
				break
			}
		}
	}

	if trailing := strings.TrimSpace(current.String()); trailing != "" {
		sentences = append(sentences, trailing)
	}
	return sentences
}
