package chunkuploader

// State is the phase an upload is in.
type State int

// Upload states. Failed can be reached from Splitting, UploadingChunk and Finalizing.
const (
	StateIdle State = iota
	StateSplitting
	StateUploadingChunk
	StateFinalizing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSplitting:
		return "splitting"
	case StateUploadingChunk:
		return "uploading_chunk"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var transitions = map[State][]State{
	StateIdle:           {StateSplitting},
	StateSplitting:      {StateUploadingChunk, StateFailed},
	StateUploadingChunk: {StateUploadingChunk, StateFinalizing, StateFailed},
	StateFinalizing:     {StateCompleted, StateFailed},
}

// CanTransition reports whether an upload may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
