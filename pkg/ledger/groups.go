package ledger

// GroupMap is a static GroupResolver backed by a map. The zero value resolves nothing.
type GroupMap map[Identity]GroupID

// GroupOf implements GroupResolver.
func (m GroupMap) GroupOf(identity Identity) (GroupID, bool) {
	g, ok := m[identity]
	if !ok || g == "" {
		return "", false
	}
	return g, true
}
