package vault

// State is where one upload attempt stands in the vault protocol.
type State int

const (
	StateNotStarted State = iota
	StateTransactionOpen
	StateChunkUploaded
	StateCommitted
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateTransactionOpen:
		return "transaction_open"
	case StateChunkUploaded:
		return "chunk_uploaded"
	case StateCommitted:
		return "committed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Transaction is the client side of one server-side vault transaction. It
// lives for one upload attempt and is never reused. BaseURL is the candidate
// that accepted BeginTransaction; upload and commit go to the same place.
type Transaction struct {
	ID      string
	VaultID string
	BaseURL string
	State   State
}

// Abandon marks an unfinished transaction as given up. The vault expires it
// on its own; nothing is sent.
func (t *Transaction) Abandon() {
	if t != nil && t.State != StateCommitted {
		t.State = StateAbandoned
	}
}
