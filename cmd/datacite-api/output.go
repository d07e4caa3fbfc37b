package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/buger/jsonparser"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"datacite-api/internal/domain"
)

func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		return printJSON(w, v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	case "table", "":
		return printTable(w, v)
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, v any) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	switch val := v.(type) {
	case domain.DOIRecordList:
		tw.AppendHeader(table.Row{"DOI", "State", "URL", "Title"})
		for _, rec := range val.Records {
			tw.AppendRow(table.Row{
				rec.DOI,
				metadataString(rec.Metadata, "state"),
				metadataString(rec.Metadata, "url"),
				metadataString(rec.Metadata, "titles", "[0]", "title"),
			})
		}
		tw.AppendFooter(table.Row{fmt.Sprintf("page %d of %d", val.ThisPage, val.TotalPages), "", "", fmt.Sprintf("%d records", val.TotalRecords)})
	case domain.DOIRecord:
		tw.AppendHeader(table.Row{"Attribute", "Value"})
		tw.AppendRow(table.Row{"doi", val.DOI})
		_ = jsonparser.ObjectEach(val.Metadata, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
			if dataType == jsonparser.String {
				if s, err := jsonparser.ParseString(value); err == nil {
					value = []byte(s)
				}
			}
			tw.AppendRow(table.Row{string(key), string(value)})
			return nil
		})
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tw.AppendHeader(table.Row{"Setting", "Value"})
		for _, k := range keys {
			tw.AppendRow(table.Row{k, fmt.Sprint(val[k])})
		}
	default:
		return printJSON(w, v)
	}
	tw.Render()
	return nil
}

// metadataString reads a string attribute, returning "" when absent.
func metadataString(md domain.Metadata, keys ...string) string {
	s, err := jsonparser.GetString(md, keys...)
	if err != nil {
		return ""
	}
	return s
}
