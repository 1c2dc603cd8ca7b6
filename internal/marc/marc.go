// Package marc reads authority records in MARCXML (through marcli) or in the
// line based mnemonic form ("=200  1\$aShevchenko$gTaras").
package marc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	marcli "github.com/hectorcorrea/marcli/pkg/marc"
)

// Subfield is one coded value of a data field.
type Subfield struct {
	Code  string
	Value string
}

// Field is a control field (Data set) or a data field (Subfields set).
type Field struct {
	Tag       string
	Ind1      string
	Ind2      string
	Data      string
	Subfields []Subfield
}

// Value returns the trimmed value of the last subfield with code, or "".
func (f Field) Value(code string) string {
	v := ""
	for _, sf := range f.Subfields {
		if sf.Code == code {
			v = sf.Value
		}
	}
	return strings.TrimSpace(v)
}

// Record is a parsed authority record.
type Record struct {
	Leader string // mnemonic input only
	Fields []Field
}

// Tag returns every field with the given tag in record order.
func (r Record) Tag(tag string) []Field {
	var out []Field
	for _, f := range r.Fields {
		if f.Tag == tag {
			out = append(out, f)
		}
	}
	return out
}

// First returns subfield code of the first field tagged tag, or "".
func (r Record) First(tag, code string) string {
	for _, f := range r.Fields {
		if f.Tag == tag {
			return f.Value(code)
		}
	}
	return ""
}

// ErrEmptyRecord is returned for blank input.
var ErrEmptyRecord = errors.New("empty record")

// Parse detects the format of raw and parses it.
func Parse(raw string) (Record, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return Record{}, ErrEmptyRecord
	case strings.HasPrefix(trimmed, "<"):
		return ParseXML(trimmed)
	case strings.HasPrefix(trimmed, "="):
		return ParseMnemonic(trimmed)
	default:
		return Record{}, fmt.Errorf("unrecognized record format starting with %q", firstLine(trimmed))
	}
}

// ParseXML reads the first record of a MARCXML document. Both bare and marc:
// prefixed documents are accepted.
func ParseXML(raw string) (Record, error) {
	// marcli picks the XML reader from the file extension and only reads
	// from an *os.File.
	tmpFile, err := os.CreateTemp("", "authority-*.xml")
	if err != nil {
		return Record{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	if _, err := tmpFile.WriteString(unprefix.Replace(raw)); err != nil {
		return Record{}, fmt.Errorf("failed to write temp file: %w", err)
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return Record{}, fmt.Errorf("failed to seek: %w", err)
	}

	marcFile := marcli.NewMarcFile(tmpFile)
	if !marcFile.Scan() {
		if err := marcFile.Err(); err != nil {
			return Record{}, fmt.Errorf("failed to parse MARCXML: %w", err)
		}
		return Record{}, fmt.Errorf("failed to parse MARCXML: no record found")
	}
	parsed, err := marcFile.Record()
	if err != nil {
		return Record{}, fmt.Errorf("failed to parse MARCXML: %w", err)
	}

	var rec Record
	for _, mf := range parsed.Fields {
		if mf.IsControlField() {
			rec.Fields = append(rec.Fields, Field{Tag: mf.Tag, Data: strings.TrimSpace(mf.Value)})
			continue
		}
		f := Field{Tag: mf.Tag, Ind1: mf.Indicator1, Ind2: mf.Indicator2}
		for _, sf := range mf.SubFields {
			f.Subfields = append(f.Subfields, Subfield{Code: sf.Code, Value: strings.TrimSpace(sf.Value)})
		}
		rec.Fields = append(rec.Fields, f)
	}
	if len(rec.Fields) == 0 {
		return Record{}, fmt.Errorf("failed to parse MARCXML: %w", ErrEmptyRecord)
	}
	return rec, nil
}

// marcli matches unprefixed MARC21 slim element names.
var unprefix = strings.NewReplacer("<marc:", "<", "</marc:", "</")

// ParseMnemonic reads a record in mnemonic form. Each field is one line:
// "=TAG  " followed by the control data, or by two indicators ("\" for blank)
// and "$"-prefixed subfields.
func ParseMnemonic(raw string) (Record, error) {
	var rec Record
	for n, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(line, "=") || len(line) < 4 {
			return Record{}, fmt.Errorf("malformed mnemonic line %d: %q", n+1, line)
		}

		tag := line[1:4]
		body := strings.TrimPrefix(line[4:], "  ")
		if tag == "LDR" {
			rec.Leader = body
			continue
		}
		if tag < "010" {
			rec.Fields = append(rec.Fields, Field{Tag: tag, Data: strings.TrimSpace(body)})
			continue
		}

		if len(body) < 2 {
			return Record{}, fmt.Errorf("malformed mnemonic line %d: missing indicators", n+1)
		}
		f := Field{Tag: tag, Ind1: indicator(body[0]), Ind2: indicator(body[1])}
		for _, part := range strings.Split(body[2:], "$")[1:] {
			if part == "" {
				continue
			}
			f.Subfields = append(f.Subfields, Subfield{Code: part[:1], Value: strings.TrimSpace(part[1:])})
		}
		rec.Fields = append(rec.Fields, f)
	}

	if len(rec.Fields) == 0 {
		return Record{}, ErrEmptyRecord
	}
	return rec, nil
}

func indicator(b byte) string {
	if b == '\\' || b == '#' {
		return " "
	}
	return string(b)
}

// Mnemonic renders the record in mnemonic form.
func (r Record) Mnemonic() string {
	var b strings.Builder
	if r.Leader != "" {
		fmt.Fprintf(&b, "=LDR  %s\n", r.Leader)
	}
	for _, f := range r.Fields {
		if len(f.Subfields) == 0 {
			fmt.Fprintf(&b, "=%s  %s\n", f.Tag, f.Data)
			continue
		}
		fmt.Fprintf(&b, "=%s  %s%s", f.Tag, mnemonicIndicator(f.Ind1), mnemonicIndicator(f.Ind2))
		for _, sf := range f.Subfields {
			fmt.Fprintf(&b, "$%s%s", sf.Code, sf.Value)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func mnemonicIndicator(ind string) string {
	if strings.TrimSpace(ind) == "" {
		return "\\"
	}
	return ind
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
