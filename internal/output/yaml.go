package output

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLWriter buffers records and emits them as one YAML document on
// Flush.
type YAMLWriter struct {
	w    *bufio.Writer
	recs []Record
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{w: bufio.NewWriter(w)}
}

func (w *YAMLWriter) Write(rec Record) error {
	w.recs = append(w.recs, rec)
	return nil
}

func (w *YAMLWriter) Flush() error {
	enc := yaml.NewEncoder(w.w)
	enc.SetIndent(2)

	var err error
	if len(w.recs) == 1 {
		err = enc.Encode(w.recs[0])
	} else {
		err = enc.Encode(w.recs)
	}
	if err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return w.w.Flush()
}
