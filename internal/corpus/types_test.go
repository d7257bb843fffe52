package corpus

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeDecodeDocument(t *testing.T) {
	raw := `{
		"type": "document",
		"document": {
			"document_id": "D1",
			"title": "Tabriz",
			"tokens": ["tabriz", "iran"]
		}
	}`
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != EnvelopeDocument {
		t.Errorf("Type = %q, want %q", env.Type, EnvelopeDocument)
	}
	if env.Document == nil {
		t.Fatal("Document is nil")
	}
	if env.Document.ID != "D1" || env.Document.Title != "Tabriz" {
		t.Errorf("Document = %+v", env.Document)
	}
	if len(env.Document.Tokens) != 2 || env.Document.Tokens[0] != "tabriz" {
		t.Errorf("Tokens = %v", env.Document.Tokens)
	}
}

func TestEnvelopeDecodeSnapshotComplete(t *testing.T) {
	raw := `{"type": "snapshot_complete", "snapshot_id": "snap-42"}`
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != EnvelopeSnapshotComplete {
		t.Errorf("Type = %q, want %q", env.Type, EnvelopeSnapshotComplete)
	}
	if env.SnapshotID != "snap-42" {
		t.Errorf("SnapshotID = %q, want snap-42", env.SnapshotID)
	}
	if env.Document != nil {
		t.Errorf("Document = %+v, want nil", env.Document)
	}
}
