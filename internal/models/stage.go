package models

// Stage is one phase of the pipeline.
type Stage string

const (
	StageParse   Stage = "parse"
	StageAnalyze Stage = "analyze"
	StageCurate  Stage = "curate"
	StageWrite   Stage = "write"
	StageBuild   Stage = "build"
	StagePublish Stage = "publish"
)

// stageOrder is the forward-only progression. Build and publish share a
// queue; publish has no start message of its own and is reached inside the
// build unit.
var stageOrder = []Stage{StageParse, StageAnalyze, StageCurate, StageWrite, StageBuild, StagePublish}

// QueueStages lists the stages that have their own queue and start message.
func QueueStages() []Stage {
	return []Stage{StageParse, StageAnalyze, StageCurate, StageWrite, StageBuild}
}

// ParseStage maps a string to a known queue stage.
func ParseStage(s string) (Stage, bool) {
	for _, st := range QueueStages() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Next returns the following stage, or "" after the last one.
func (s Stage) Next() Stage {
	for i, st := range stageOrder {
		if st == s && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	return ""
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, st := range stageOrder {
		if st == s {
			return true
		}
	}
	return false
}
