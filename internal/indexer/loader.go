package indexer

import (
	"context"

	"knowledgescout/internal/extract"
)

// FileLoader loads document text from the stored upload on disk.
type FileLoader struct{}

func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

func (l *FileLoader) Load(ctx context.Context, doc Document) (extract.Result, error) {
	if err := ctx.Err(); err != nil {
		return extract.Result{}, err
	}
	return extract.FromFile(doc.FilePath)
}
