package orchestrator

import (
	"fmt"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
)

// State is the upload progress of one file.
type State int

const (
	NeedsIntent State = iota
	AwaitingIntent
	Uploading
	Uploaded
	Failed
)

func (s State) String() string {
	switch s {
	case NeedsIntent:
		return "needs_intent"
	case AwaitingIntent:
		return "awaiting_intent"
	case Uploading:
		return "uploading"
	case Uploaded:
		return "uploaded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// allowed lists legal moves. Uploading may fall back to NeedsIntent when the
// intent lapsed before a retry; a failed file may be tried again.
var allowed = map[State][]State{
	NeedsIntent:    {AwaitingIntent},
	AwaitingIntent: {Uploading, Failed},
	Uploading:      {Uploaded, Failed, NeedsIntent},
	Failed:         {NeedsIntent},
}

func transition(from, to State) (State, error) {
	for _, s := range allowed[from] {
		if s == to {
			return to, nil
		}
	}
	return from, fmt.Errorf("%w: %s -> %s", common.ErrVersionConflict, from, to)
}
