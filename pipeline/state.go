package pipeline

// State is the progress of one subject/session unit.
type State int

const (
	Init State = iota
	OutpathReady
	BrainExtracted
	MetadataChecked
	Staged
	Defaced
	SecondaryDefaced
	Finalized
	Visualized
	Reorganized
	Done
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case OutpathReady:
		return "OUTPATH_READY"
	case BrainExtracted:
		return "BRAIN_EXTRACTED"
	case MetadataChecked:
		return "METADATA_CHECKED"
	case Staged:
		return "STAGED"
	case Defaced:
		return "DEFACED"
	case SecondaryDefaced:
		return "SECONDARY_DEFACED"
	case Finalized:
		return "FINALIZED"
	case Visualized:
		return "VISUALIZED"
	case Reorganized:
		return "REORGANIZED"
	case Done:
		return "DONE"
	}
	return "UNKNOWN"
}
