package curriculum

// Status is the lifecycle state of an UploadRecord.
type Status string

const (
	StatusProcessing     Status = "processing"
	StatusReadyForReview Status = "ready_for_review"
	StatusRejected       Status = "rejected"
	StatusError          Status = "error"
	StatusComplete       Status = "complete"
)

// Stage numbers of the ingestion pipeline.
const (
	StageParse     = 1
	StageStructure = 2
	StageAlign     = 3
	StageGenerate  = 4
)

var transitions = map[Status][]Status{
	StatusProcessing:     {StatusReadyForReview, StatusComplete, StatusError},
	StatusReadyForReview: {StatusProcessing, StatusRejected, StatusError},
	StatusError:          {StatusProcessing},
	StatusRejected:       nil,
	StatusComplete:       nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusRejected
}

// CanTransition reports whether the state machine allows from -> to.
// Re-writing the current status (progress updates) is always allowed for
// non-terminal states.
func CanTransition(from, to Status) bool {
	if from == to {
		return from.Valid() && !from.Terminal()
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesFor lists every status a row may be in for a write that sets to.
func SourcesFor(to Status) []Status {
	var out []Status
	for _, from := range orderedStatuses {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

var orderedStatuses = []Status{
	StatusProcessing,
	StatusReadyForReview,
	StatusRejected,
	StatusError,
	StatusComplete,
}

func StageName(stage int) string {
	switch stage {
	case StageParse:
		return "parse"
	case StageStructure:
		return "structure"
	case StageAlign:
		return "align"
	case StageGenerate:
		return "generate"
	default:
		return "unknown"
	}
}
