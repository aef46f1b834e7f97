// Package schema resolves the context rules and the schema text handed to
// the completion service, live from the store or from the context document.
package schema

import (
	"fmt"
	"strings"
)

// Source tells where the schema text of a Context came from.
type Source string

const (
	SourceLive     Source = "live"
	SourceDocument Source = "document"
)

type Column struct {
	Name string
	Type string
}

type Table struct {
	Name    string
	Columns []Column
}

// Descriptor is the introspected table list, in candidate order.
type Descriptor struct {
	Namespace string
	Tables    []Table
}

// Render formats the descriptor as one "- table: col (type), ..." line per
// table under a heading line.
func (d Descriptor) Render() string {
	lines := make([]string, 0, len(d.Tables)+1)
	lines = append(lines, fmt.Sprintf("Northwind (canlı şemadan çıkarım) - %s şema", d.Namespace))
	for _, table := range d.Tables {
		if len(table.Columns) == 0 {
			lines = append(lines, fmt.Sprintf("- %s: (kolon yok)", table.Name))
			continue
		}
		columns := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, fmt.Sprintf("%s (%s)", column.Name, column.Type))
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", table.Name, strings.Join(columns, ", ")))
	}
	return strings.Join(lines, "\n")
}

// Context is what one session works with. Rules and Schema are never empty.
type Context struct {
	Rules  string
	Schema string
	Source Source
	// Descriptor is set only for SourceLive.
	Descriptor *Descriptor
}
