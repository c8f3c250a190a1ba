package output

import (
	"bufio"
	"encoding/json"
	"io"
)

// JSONWriter buffers records and emits them on Flush: a single record
// as one object, multiple records as an array.
type JSONWriter struct {
	w    *bufio.Writer
	recs []Record
}

// NewJSONWriter creates a pretty-printing JSON writer.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: bufio.NewWriter(w)}
}

func (w *JSONWriter) Write(rec Record) error {
	w.recs = append(w.recs, rec)
	return nil
}

func (w *JSONWriter) Flush() error {
	var data []byte
	var err error
	if len(w.recs) == 1 {
		data, err = json.MarshalIndent(w.recs[0], "", "  ")
	} else {
		data, err = json.MarshalIndent(w.recs, "", "  ")
	}
	if err != nil {
		return err
	}

	if _, err := w.w.Write(data); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// JSONLWriter writes newline-delimited JSON, one record per line, as
// records arrive.
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: bufio.NewWriter(w)}
}

func (w *JSONLWriter) Write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLWriter) Flush() error {
	return w.w.Flush()
}
