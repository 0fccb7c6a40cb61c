package dataset

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/zavalabs/raft/internal/models"
)

// ChatMessage is one turn in the fine-tuning chat format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRecord is one fine-tuning training line.
type ChatRecord struct {
	Messages []ChatMessage `json:"messages"`
}

const chatSystemPrompt = "You are a helpful assistant that answers questions using the provided documents. " +
	"Cite the relevant document content in your reasoning and ignore documents that do not help."

// ToChatRecords converts examples into the chat format the fine-tuning API
// expects. The oracle context is interleaved with the distractors at a
// seed-determined position so the student cannot learn a positional shortcut.
func ToChatRecords(examples []models.SyntheticExample, seed int64) []ChatRecord {
	rng := rand.New(rand.NewSource(seed))

	records := make([]ChatRecord, 0, len(examples))
	for _, example := range examples {
		contexts := make([]string, 0, len(example.Distractors)+1)
		contexts = append(contexts, example.Distractors...)

		position := 0
		if len(contexts) > 0 {
			position = rng.Intn(len(contexts) + 1)
		}
		contexts = append(contexts[:position], append([]string{example.OracleContext}, contexts[position:]...)...)

		var sb strings.Builder
		for _, context := range contexts {
			fmt.Fprintf(&sb, "<DOCUMENT>%s</DOCUMENT>\n", context)
		}
		sb.WriteString("\n")
		sb.WriteString(example.Question)

		records = append(records, ChatRecord{
			Messages: []ChatMessage{
				{Role: "system", Content: chatSystemPrompt},
				{Role: "user", Content: sb.String()},
				{Role: "assistant", Content: example.Answer},
			},
		})
	}
	return records
}

// normalizeQuestion builds the uniqueness key: lowercase with internal
// whitespace collapsed.
func normalizeQuestion(question string) string {
	return strings.ToLower(strings.Join(strings.Fields(question), " "))
}
