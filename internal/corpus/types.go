// Package corpus defines the document types handed to the index core by the
// external preprocessing pipeline, and the Kafka feed that delivers a corpus
// snapshot. Tokens arrive already lower-cased, stop-word-filtered, and
// lemmatized; the core performs no text normalization of its own.
package corpus

// Document is one preprocessed document: a stable ID, a display title, and
// the cleaned token sequence.
type Document struct {
	ID     string   `json:"document_id"`
	Title  string   `json:"title"`
	Tokens []string `json:"tokens"`
}

// Envelope is the wire format on the corpus-documents topic. A snapshot is
// a stream of "document" envelopes terminated by one "snapshot_complete"
// marker; the corpus is closed for indexing once the marker arrives.
type Envelope struct {
	Type       string    `json:"type"`
	SnapshotID string    `json:"snapshot_id"`
	Document   *Document `json:"document,omitempty"`
}

const (
	EnvelopeDocument         = "document"
	EnvelopeSnapshotComplete = "snapshot_complete"
)
