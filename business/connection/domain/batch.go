package domain

// RawBatch is one delivery of a batched subscription. Values and Errs are
// aligned with the subscribed keys. A nil value means the key has no state;
// a non-nil error means that index could not be read this tick.
type RawBatch struct {
	Values [][]byte
	Errs   []error
	Block  string
}

// Err returns the error for index i, if any.
func (b RawBatch) Err(i int) error {
	if i < len(b.Errs) {
		return b.Errs[i]
	}
	return nil
}
