// Package draftfiles reads draft documents laid out as <root>/<kind>/<file>.
package draftfiles

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/internal/providers/shared/fsutil"
	"github.com/crmarques/catalogsync/resource"
)

// Extensions lists the file suffixes read as drafts.
var Extensions = []string{".json", ".yaml", ".yml"}

// Read returns the drafts of kind stored under root, ordered by file name and
// then by position inside each file. A file holds one draft object or a list
// of them; YAML files may hold several documents. A missing kind directory
// yields no drafts.
func Read(root string, kind resource.Kind) ([]*resource.Draft, error) {
	if strings.TrimSpace(root) == "" {
		return nil, faults.NewTypedError(faults.ValidationError, "draft directory is required", nil)
	}
	if strings.TrimSpace(string(kind)) == "" || strings.ContainsAny(string(kind), `/\`) {
		return nil, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("invalid resource kind %q", kind), nil)
	}

	kindDir := filepath.Join(root, string(kind))
	if !fsutil.IsPathUnderRoot(root, kindDir) {
		return nil, escapeError(kindDir)
	}

	entries, err := os.ReadDir(kindDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, faults.NewTypedError(faults.InternalError, fmt.Sprintf("failed to list drafts in %q", kindDir), err)
	}

	drafts := []*resource.Draft{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !hasDraftExtension(name) {
			continue
		}

		filePath := filepath.Join(kindDir, name)
		if !fsutil.IsPathUnderRoot(root, filePath) {
			return nil, escapeError(filePath)
		}
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, faults.NewTypedError(faults.InternalError, fmt.Sprintf("failed to read draft file %q", filePath), err)
		}

		fileDrafts, err := Decode(kind, filepath.Ext(name), data)
		if err != nil {
			return nil, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("invalid draft file %q", filePath), err)
		}
		drafts = append(drafts, fileDrafts...)
	}
	return drafts, nil
}

// Decode parses one draft file. ext selects the format: ".json" or YAML.
func Decode(kind resource.Kind, ext string, data []byte) ([]*resource.Draft, error) {
	var documents []any
	switch strings.ToLower(ext) {
	case ".json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber()
		for {
			var decoded any
			err := decoder.Decode(&decoded)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("invalid json payload: %w", err)
			}
			documents = append(documents, decoded)
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		for {
			var decoded any
			err := decoder.Decode(&decoded)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("invalid yaml payload: %w", err)
			}
			if decoded != nil {
				documents = append(documents, decoded)
			}
		}
	}

	var drafts []*resource.Draft
	for _, document := range documents {
		items, ok := document.([]any)
		if !ok {
			items = []any{document}
		}
		for idx, item := range items {
			payload, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("draft %d must be an object, got %T", idx, item)
			}
			draft, err := resource.NewDraft(kind, payload)
			if err != nil {
				return nil, err
			}
			drafts = append(drafts, draft)
		}
	}
	return drafts, nil
}

func hasDraftExtension(name string) bool {
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(name)))
}

func escapeError(path string) error {
	return faults.NewTypedError(faults.ValidationError, fmt.Sprintf("draft path %q escapes draft directory", path), nil)
}
