package artifact

// PublishRecord is what the oracle holds for one publisher.
//
// Two records describe the same state only if they are equal as values.
// Heights are not assumed to be monotonic per publisher.
type PublishRecord struct {
	Identity Identity `json:"identity"`
	Height   uint64   `json:"height"`
}

// Key identifies one cached artifact: the publisher that claims it and its identity.
type Key struct {
	Publisher string
	Identity  Identity
}

// RetentionSet is the set of keys that must survive eviction.
type RetentionSet map[Key]struct{}

func (s RetentionSet) Add(publisher string, id Identity) {
	s[Key{Publisher: publisher, Identity: id}] = struct{}{}
}

func (s RetentionSet) Has(publisher string, id Identity) bool {
	_, ok := s[Key{Publisher: publisher, Identity: id}]
	return ok
}

func (s RetentionSet) Len() int { return len(s) }

// FromRecords builds a retention set from a publisher -> record mapping.
func FromRecords(records map[string]PublishRecord) RetentionSet {
	out := make(RetentionSet, len(records))
	for publisher, rec := range records {
		out.Add(publisher, rec.Identity)
	}
	return out
}
