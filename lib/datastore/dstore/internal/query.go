package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTSnapshot QueryType = iota // Retrieve the current tree (*datastore.Tree).
	QueryTVersion                   // Retrieve the version of the current tree (uint64).
)

func (q QueryType) String() string {
	switch q {
	case QueryTSnapshot:
		return "Snapshot"
	case QueryTVersion:
		return "Version"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type QueryType
}
