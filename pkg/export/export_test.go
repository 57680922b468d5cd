package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterPadsRows(t *testing.T) {
	out, err := NewCSVExporter().Render(Table{
		Headers: []string{"id", "title", "decision"},
		Rows:    [][]string{{"1", "Sports fest, day 1", "APPROVED"}, {"2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "id,title,decision\n1,\"Sports fest, day 1\",APPROVED\n2,,\n", string(out))

	_, err = NewCSVExporter().Render(Table{})
	require.Error(t, err)
}

func TestPDFExporterRendersDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(Document{
		Title:  "Funding Request #12",
		Fields: []Field{{Label: "Amount", Value: "1500.00"}},
		Tables: []NamedTable{{
			Caption: "Approvals",
			Table:   Table{Headers: []string{"Stage", "Status"}, Rows: [][]string{{"Adviser", "Approved"}, {"Dean"}}},
		}},
		Footer: "Generated automatically",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().Render(Document{})
	require.Error(t, err)
}
