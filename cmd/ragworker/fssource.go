package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
	"github.com/badbayesian/ragonometrics-sub003/fingerprint"
	"github.com/badbayesian/ragonometrics-sub003/pipeline"
)

// fsSource is a filesystem pipeline.Source for plain-text corpora. The
// corpus selector is a directory path (a "dir://" prefix is accepted);
// every .txt and .md file under it is a document, and extraction splits
// the file into form-feed separated pages.
//
// Binary formats need a real extraction service; embed the engine with
// your own Source for those.
type fsSource struct{}

func newFSSource() *fsSource { return &fsSource{} }

func (f *fsSource) ListDocuments(_ context.Context, selector string) ([]pipeline.Document, error) {
	root := strings.TrimPrefix(selector, "dir://")
	info, err := os.Stat(root)
	if err != nil {
		return nil, ragonometrics.E(ragonometrics.CodeUnavailable,
			fmt.Sprintf("corpus directory %q", root), err)
	}
	if !info.IsDir() {
		return nil, ragonometrics.E(ragonometrics.CodeValidation,
			fmt.Sprintf("corpus selector %q is not a directory", root), nil)
	}

	var docs []pipeline.Document
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
		default:
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		docs = append(docs, pipeline.Document{
			Identity:    path,
			Name:        d.Name(),
			ContentHash: fingerprint.Content(data),
		})
		return nil
	})
	if err != nil {
		return nil, ragonometrics.E(ragonometrics.CodeUnavailable,
			fmt.Sprintf("walk corpus %q", root), err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Identity < docs[j].Identity })
	return docs, nil
}

func (f *fsSource) ExtractText(_ context.Context, doc pipeline.Document) (pipeline.Extraction, error) {
	data, err := os.ReadFile(doc.Identity)
	if err != nil {
		return pipeline.Extraction{}, ragonometrics.E(ragonometrics.CodeUnavailable,
			fmt.Sprintf("read %q", doc.Identity), err)
	}

	var (
		pages []pipeline.Page
		words int
	)
	for i, text := range strings.Split(string(data), "\f") {
		pages = append(pages, pipeline.Page{PageNo: i + 1, Text: text})
		words += len(strings.Fields(text))
	}
	return pipeline.Extraction{Pages: pages, WordCount: words}, nil
}
