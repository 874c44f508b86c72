package meter

// Update is one exposed-path write produced by a derivation pass.
// OnlyIfChanged marks writes the coordinator suppresses when the path
// already holds the same value.
type Update struct {
	Path          string
	Value         any
	OnlyIfChanged bool
}

// Deriver computes the full set of exposed values from a field store
// snapshot. Implementations are pure: missing inputs follow the
// variant's fallback policy, fields never seen produce no update.
type Deriver interface {
	Derive(store *FieldStore) []Update
}
