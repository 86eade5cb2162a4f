package batch

import (
	"encoding/csv"
	"fmt"
	"os"

	"slidecast/types"
)

// CSV column order for saved batch tables.
var tableColumns = []string{
	"video_title", "preset_path", "workflow_path", "account",
	"category", "schedule", "status", "progress", "video_url",
}

// LoadItems reads a batch table from a CSV file. Columns are matched by
// header name; stale status and progress values are reset so a saved table
// can be re-run as-is.
func LoadItems(path string) ([]*types.BatchItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = -1
	records, err := rd.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse batch file %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("batch file %s is empty", path)
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var items []*types.BatchItem
	for _, row := range records[1:] {
		items = append(items, &types.BatchItem{
			VideoTitle:   field(row, "video_title"),
			PresetPath:   field(row, "preset_path"),
			WorkflowPath: field(row, "workflow_path"),
			Account:      field(row, "account"),
			Category:     field(row, "category"),
			Schedule:     field(row, "schedule"),
			Status:       types.StatusReady,
			Progress:     "0%",
		})
	}
	return items, nil
}

// SaveItems writes the batch table, including run results, back to CSV.
func SaveItems(path string, items []*types.BatchItem) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create batch file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(tableColumns); err != nil {
		return err
	}
	for _, item := range items {
		row := []string{
			item.VideoTitle, item.PresetPath, item.WorkflowPath, item.Account,
			item.Category, item.Schedule, item.Status, item.Progress, item.VideoURL,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write batch file: %w", err)
	}
	return nil
}
