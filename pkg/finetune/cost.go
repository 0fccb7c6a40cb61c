package finetune

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/zavalabs/raft/pkg/dataset"
)

// TokenEstimate summarizes the size of a training run before anything is
// uploaded, so dry runs can show what a real run would train on.
type TokenEstimate struct {
	Records        int
	TokensPerEpoch int
	Epochs         int
	TotalTokens    int
}

func (e TokenEstimate) String() string {
	return fmt.Sprintf("%d records, ~%d tokens per epoch, ~%d tokens over %d epochs",
		e.Records, e.TokensPerEpoch, e.TotalTokens, e.Epochs)
}

// EstimateTraining counts the tokens of every chat record under the
// cl100k_base encoding and scales by the epoch count.
func EstimateTraining(records []dataset.ChatRecord, epochs int) (TokenEstimate, error) {
	if epochs <= 0 {
		epochs = 1
	}

	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return TokenEstimate{}, fmt.Errorf("failed to load token encoding: %w", err)
	}

	perEpoch := 0
	for _, record := range records {
		for _, message := range record.Messages {
			// Small per-message overhead for role and separators.
			perEpoch += len(encoding.Encode(message.Content, nil, nil)) + 4
		}
	}

	return TokenEstimate{
		Records:        len(records),
		TokensPerEpoch: perEpoch,
		Epochs:         epochs,
		TotalTokens:    perEpoch * epochs,
	}, nil
}
