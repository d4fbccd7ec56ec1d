package domain

// Document represents a unit of ingested text extracted from one uploaded
// file. Source is the original upload name, never the staged path. Page is
// set when the format has logical pages or slides (1-based), nil otherwise.
type Document struct {
	Content string
	Source  string
	Page    *int
}

// PageOf is a convenience for building page pointers in loaders and tests.
func PageOf(n int) *int {
	return &n
}

// Chunk is a bounded slice of document text sized by token count, carrying
// the provenance of the document(s) it was cut from.
type Chunk struct {
	Content string
	Source  string
	Page    *int
}

// FileError records a per-file ingestion problem that did not abort the
// batch (unsupported extension under the skip-and-continue policy).
type FileError struct {
	Name string
	Err  error
}

func (f FileError) Error() string {
	return f.Name + ": " + f.Err.Error()
}

func (f FileError) Unwrap() error {
	return f.Err
}
