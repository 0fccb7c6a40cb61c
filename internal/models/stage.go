package models

// Stage marks workflow progress. Each stage is a prerequisite for the next.
type Stage string

const (
	StageNone       Stage = ""
	StageConfigured Stage = "CONFIGURED"
	StageChecked    Stage = "CHECKED"
	StageGenerated  Stage = "GENERATED"
	StageFinetuned  Stage = "FINETUNED"
	StageDeployed   Stage = "DEPLOYED"
	StageEvaluated  Stage = "EVALUATED"
)

var stageOrder = []Stage{
	StageConfigured,
	StageChecked,
	StageGenerated,
	StageFinetuned,
	StageDeployed,
	StageEvaluated,
}

func (s Stage) rank() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Reached reports whether s is at or past other in the workflow chain.
func (s Stage) Reached(other Stage) bool {
	return s.rank() >= other.rank()
}

// Next returns the stage that follows s, or StageEvaluated if s is last.
func (s Stage) Next() Stage {
	r := s.rank()
	if r < 0 {
		return StageConfigured
	}
	if r+1 >= len(stageOrder) {
		return StageEvaluated
	}
	return stageOrder[r+1]
}
