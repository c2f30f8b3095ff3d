package engine

import (
	"context"
	"fmt"
	"time"

	"feedsync/app/database"
)

type Field string

const (
	FieldRead    Field = "read"
	FieldStarred Field = "starred"
	FieldScore   Field = "score"
)

// Mutation is one user-initiated state change. ChangedAt is the
// client-supplied timestamp driving last-writer-wins resolution.
type Mutation struct {
	EntryID   string
	Field     Field
	BoolValue bool // read / starred
	Score     *int // score; nil clears the explicit score
	ChangedAt time.Time
}

// State is the authoritative per-user state of one entry after a
// mutation attempt, whether or not the mutation applied.
type State struct {
	EntryID       string
	Found         bool
	Read          bool
	Starred       bool
	Score         *int
	ImplicitScore int
}

// StateReconciler applies read/starred/score mutations with
// timestamp-based conflict resolution. A mutation that loses the race is
// silently dropped and the stored state returned; that is not an error.
type StateReconciler struct {
	userEntryRepo database.UserEntryRepository
}

func NewStateReconciler(userEntryRepo database.UserEntryRepository) *StateReconciler {
	return &StateReconciler{userEntryRepo: userEntryRepo}
}

// ApplyMutation performs a single conditional write: the field and its
// timestamp are overwritten only when the stored timestamp does not
// exceed the incoming one. Ties favor the incoming write. Fields are
// independent; updating read never touches the starred timestamp.
func (s *StateReconciler) ApplyMutation(ctx context.Context, userID string, m Mutation) (State, error) {
	changedAt := m.ChangedAt.UnixMilli()

	var err error
	switch m.Field {
	case FieldRead:
		err = s.userEntryRepo.UpdateReadIfNewer(ctx, userID, m.EntryID, m.BoolValue, changedAt)
	case FieldStarred:
		err = s.userEntryRepo.UpdateStarredIfNewer(ctx, userID, m.EntryID, m.BoolValue, changedAt)
	case FieldScore:
		err = s.userEntryRepo.UpdateScoreIfNewer(ctx, userID, m.EntryID, m.Score, changedAt)
	default:
		return State{}, fmt.Errorf("unknown mutation field: %s", m.Field)
	}
	if err != nil {
		return State{}, err
	}

	return s.currentState(ctx, userID, m.EntryID)
}

// ApplyBatch evaluates every mutation independently against its own
// stored timestamps and reports the final state for each requested
// entry, applied or not, so callers reconcile optimistic local state
// without a second round trip.
func (s *StateReconciler) ApplyBatch(ctx context.Context, userID string, mutations []Mutation) ([]State, error) {
	states := make([]State, 0, len(mutations))
	for _, m := range mutations {
		state, err := s.ApplyMutation(ctx, userID, m)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}

func (s *StateReconciler) currentState(ctx context.Context, userID, entryID string) (State, error) {
	ue, err := s.userEntryRepo.GetUserEntry(ctx, userID, entryID)
	if err != nil {
		return State{}, err
	}
	if ue == nil {
		return State{EntryID: entryID, Found: false}, nil
	}

	return State{
		EntryID:       entryID,
		Found:         true,
		Read:          ue.Read,
		Starred:       ue.Starred,
		Score:         ue.Score,
		ImplicitScore: ImplicitScore(ue.Read, ue.Starred),
	}, nil
}

// ImplicitScore derives a score from current read/starred state. It is
// recomputed on read, never stored, and only consulted when no explicit
// score is set.
func ImplicitScore(read, starred bool) int {
	switch {
	case starred:
		return 1
	case read:
		return -1
	default:
		return 0
	}
}
