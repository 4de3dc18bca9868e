// Package knowledge reads the knowledge base file and flattens it into documents.
//
// The file holds one root key mapping category names to lists of documents:
//
//	{"UMS_Chatbot_Paths": {"Library": ["The library opens at 9am."], "Fees": ["..."]}}
//
// Categories are flattened in file order, documents in list order. The
// category name itself is not kept.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/passage/internal/domain"
	"github.com/kailas-cloud/passage/internal/logger"
)

// DefaultRootKey is the root key used when none is configured.
const DefaultRootKey = "UMS_Chatbot_Paths"

// Format of a knowledge base file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format by file extension. Anything but .yaml/.yml is JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and parses the knowledge base at path.
func Load(ctx context.Context, path, rootKey string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w: %w", path, domain.ErrLoad, err)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w: %w", domain.ErrLoad, err)
	}

	docs, err := Parse(data, FormatFromPath(path), rootKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	logger.FromContext(ctx).Info("Knowledge base loaded",
		zap.String("path", path),
		zap.Int("documents", len(docs)),
	)
	return docs, nil
}

// Parse flattens knowledge base contents. Errors wrap domain.ErrLoad.
func Parse(data []byte, format Format, rootKey string) ([]string, error) {
	if rootKey == "" {
		rootKey = DefaultRootKey
	}

	var (
		docs []string
		err  error
	)
	switch format {
	case FormatJSON:
		docs, err = parseJSON(data, rootKey)
	case FormatYAML:
		docs, err = parseYAML(data, rootKey)
	default:
		err = fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse knowledge base: %w: %w", domain.ErrLoad, err)
	}
	if docs == nil {
		docs = []string{}
	}
	return docs, nil
}

// parseJSON walks the token stream so categories keep their file order.
func parseJSON(data []byte, rootKey string) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var (
		docs  []string
		found bool
	)
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		if key != rootKey || found {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			continue
		}
		found = true
		if docs, err = jsonCategories(dec); err != nil {
			return nil, err
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after top-level object")
	}
	if !found {
		return nil, fmt.Errorf("root key %q not found", rootKey)
	}
	return docs, nil
}

func jsonCategories(dec *json.Decoder) ([]string, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("root value: %w", err)
	}

	var docs []string
	for dec.More() {
		category, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		var items []any
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("category %q: expected a list of documents: %w", category, err)
		}
		// null decodes to a nil slice; [] decodes to an empty one.
		if items == nil {
			return nil, fmt.Errorf("category %q: expected a list of documents, got null", category)
		}
		for i, item := range items {
			text, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("category %q: document %d is %T, not a string", category, i, item)
			}
			docs = append(docs, text)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return docs, nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// parseYAML uses yaml.Node since mapping order is lost when decoding into a map.
func parseYAML(data []byte, rootKey string) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty document")
	}

	top := doc.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top level must be a mapping", top.Line)
	}

	var root *yaml.Node
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value == rootKey {
			root = top.Content[i+1]
			break
		}
	}
	if root == nil {
		return nil, fmt.Errorf("root key %q not found", rootKey)
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: %q must map categories to documents", root.Line, rootKey)
	}

	var docs []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		category, list := root.Content[i].Value, root.Content[i+1]
		if list.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("line %d: category %q: expected a list of documents", list.Line, category)
		}
		for j, item := range list.Content {
			if item.Kind != yaml.ScalarNode || item.ShortTag() != "!!str" {
				return nil, fmt.Errorf("line %d: category %q: document %d is not a string", item.Line, category, j)
			}
			docs = append(docs, item.Value)
		}
	}
	return docs, nil
}
