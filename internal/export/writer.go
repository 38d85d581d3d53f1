package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVHeader is the column order of the export file.
var CSVHeader = []string{"id", "score", "text", "episode", "start_time", "end_time", "start_frame", "end_frame"}

// WriteCSV writes records with a header row. Scores are rendered to one decimal place.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ID,
			strconv.FormatFloat(r.Confidence, 'f', 1, 64),
			r.Text,
			strconv.Itoa(r.Episode),
			r.StartTime,
			r.EndTime,
			strconv.FormatInt(r.StartFrame, 10),
			strconv.FormatInt(r.EndFrame, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSRT writes records as SubRip cues numbered from 1.
func WriteSRT(w io.Writer, records []Record) error {
	for i, r := range records {
		text := strings.TrimSpace(r.Text)
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n", i+1, r.StartTime, r.EndTime, text); err != nil {
			return fmt.Errorf("write srt cue %d: %w", i+1, err)
		}
	}
	return nil
}
