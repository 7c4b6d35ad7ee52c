package bars

// RecordSet is an insertion-ordered set of records keyed by full field
// equality. It is not safe for concurrent mutation; each format owns its own
// set for the duration of one batch.
type RecordSet struct {
	seen    map[Key]struct{}
	records []Record
}

// NewRecordSet creates an empty set.
func NewRecordSet() *RecordSet {
	return &RecordSet{seen: make(map[Key]struct{})}
}

// Add inserts r and reports whether it was not already present.
func (s *RecordSet) Add(r Record) bool {
	k := r.Key()
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	s.records = append(s.records, r)
	return true
}

// Contains reports whether an equal record is in the set.
func (s *RecordSet) Contains(r Record) bool {
	_, ok := s.seen[r.Key()]
	return ok
}

// Len returns the number of distinct records.
func (s *RecordSet) Len() int {
	return len(s.records)
}

// Records returns the records in insertion order.
func (s *RecordSet) Records() []Record {
	return s.records
}
