package prompts

// Input is a superset of all fields any prompt might need.
// Missing fields render empty strings (templates use missingkey=zero).
type Input struct {
	// Structure detection
	SourceSummary string
	ChunkLabel    string // "part 2 of 5" when analyzing a chunk

	// Alignment
	StructureJSON       string
	TransformationLevel string
	LevelGuidance       string
	PreserveStructure   bool

	// Generation
	AlignmentJSON  string
	Topic          string
	Objectives     []string
	CorrectionNote string // set on a corrective retry
}
