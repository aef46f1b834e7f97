package schema

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/storage"
)

const (
	rulesHeading        = "## 4. Bağlam (Context) Kuralları"
	schemaHeading       = "## 5. Örnek Şema (Northwind uyumlu)"
	schemaHeadingLegacy = "## 5. Örnek Şema"
	nextHeading         = "\n## "
)

// Document loads the raw context document.
type Document interface {
	Load(ctx context.Context) (string, error)
	Describe() string
}

type FileDocument struct {
	Path string
}

func (d FileDocument) Load(context.Context) (string, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return "", fmt.Errorf("read context document %s: %w", d.Path, err)
	}
	return string(data), nil
}

func (d FileDocument) Describe() string { return d.Path }

// ObjectDocument reads the context document from the object store.
type ObjectDocument struct {
	Store storage.ObjectStore
	Key   string
}

func (d ObjectDocument) Load(ctx context.Context) (string, error) {
	reader, err := d.Store.Get(ctx, d.Key)
	if err != nil {
		return "", fmt.Errorf("get context document %s: %w", d.Key, err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read context document %s: %w", d.Key, err)
	}
	return string(data), nil
}

func (d ObjectDocument) Describe() string { return "object:" + d.Key }

// Section returns the lines after the heading line up to the next "## "
// heading, trimmed, or "" when heading does not occur. The rest of the
// heading line is not part of the section.
func Section(text, heading string) string {
	start := strings.Index(text, heading)
	if start < 0 {
		return ""
	}
	body := text[start+len(heading):]
	if eol := strings.IndexByte(body, '\n'); eol >= 0 {
		body = body[eol:]
	} else {
		return ""
	}
	if end := strings.Index(body, nextHeading); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// Rules extracts the context rules section.
func Rules(text string) (string, error) {
	rules := Section(text, rulesHeading)
	if rules == "" {
		return "", failure.New(failure.Configuration, "context rules section is missing or empty")
	}
	return rules, nil
}

// ExampleSchema extracts the example schema section, accepting the shorter
// heading used by older documents.
func ExampleSchema(text string) (string, error) {
	schema := Section(text, schemaHeading)
	if schema == "" {
		schema = Section(text, schemaHeadingLegacy)
	}
	if schema == "" {
		return "", failure.New(failure.Configuration, "example schema section is missing or empty")
	}
	return schema, nil
}
