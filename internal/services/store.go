package services

import (
	"context"
	"time"

	"github.com/soaringjerry/Pollen/internal/docstore"
	"github.com/soaringjerry/Pollen/internal/models"
)

// DocumentStore is the subset of docstore.Store the form services use.
type DocumentStore interface {
	Read(ctx context.Context, path string) (docstore.Snapshot, error)
	Write(ctx context.Context, path string, doc docstore.Document, opts docstore.WriteOptions) error
	Append(ctx context.Context, collection string, doc docstore.Document) (string, error)
	List(ctx context.Context, collection string, q docstore.Query) ([]docstore.Snapshot, error)
	Subscribe(ctx context.Context, path string) (<-chan docstore.Snapshot, func(), error)
}

const pollNotFoundMessage = "Poll not found or you don't have permission to view it."

func decodeForm(snap docstore.Snapshot) (models.Form, error) {
	var f models.Form
	if err := models.FromDocument(snap.Data, &f); err != nil {
		return models.Form{}, err
	}
	f.ID = snap.ID
	if f.Questions == nil {
		f.Questions = []models.Question{}
	}
	return f, nil
}

func encodeForm(f models.Form) (docstore.Document, error) {
	doc, err := models.ToDocument(f)
	if err != nil {
		return nil, err
	}
	delete(doc, "id")
	return doc, nil
}

// encodeQuestions produces the partial document used for read-modify-write
// updates of the questions subtree.
func encodeQuestions(f models.Form) (docstore.Document, error) {
	doc, err := encodeForm(f)
	if err != nil {
		return nil, err
	}
	return docstore.Document{"questions": doc["questions"]}, nil
}

func readForm(ctx context.Context, store DocumentStore, formPath string) (models.Form, error) {
	snap, err := store.Read(ctx, formPath)
	if err != nil {
		return models.Form{}, NewPersistenceError("read form", err)
	}
	if !snap.Exists {
		return models.Form{}, NewNotFoundError(pollNotFoundMessage)
	}
	f, err := decodeForm(snap)
	if err != nil {
		return models.Form{}, NewPersistenceError("decode form", err)
	}
	return f, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
