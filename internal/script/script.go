// Package script decides the writing system of a name and reconciles the
// declared language with it.
package script

import (
	"strings"

	"github.com/kobza-harvester/authdedup/internal/homoglyph"
)

// Script is the writing system detected in a name.
type Script int

const (
	ScriptNone Script = iota
	ScriptLatin
	ScriptCyrillic
)

func (s Script) String() string {
	switch s {
	case ScriptLatin:
		return "latin"
	case ScriptCyrillic:
		return "cyrillic"
	default:
		return "none"
	}
}

// Outcome records how the language code was reached.
type Outcome int

const (
	OutcomeKept Outcome = iota
	OutcomeOverridden
	OutcomeInferredUkrainian
	OutcomeInferredRussian
	OutcomeUnrecognized
	OutcomeNoLetters
)

func (o Outcome) String() string {
	switch o {
	case OutcomeKept:
		return "kept"
	case OutcomeOverridden:
		return "overridden"
	case OutcomeInferredUkrainian:
		return "inferred_ukrainian"
	case OutcomeInferredRussian:
		return "inferred_russian"
	case OutcomeUnrecognized:
		return "unrecognized"
	case OutcomeNoLetters:
		return "no_letters"
	default:
		return "unknown"
	}
}

var (
	latinLangs    = map[string]bool{"eng": true, "pol": true, "fra": true}
	cyrillicLangs = map[string]bool{"ukr": true, "rus": true}
)

const (
	ukrainianMarkers = "'ʼІіЇїЄє"
	russianMarkers   = "ЪъЭэЫыЁё"
)

// Result is the classified name.
type Result struct {
	EntryName string
	Initials  string
	GivenName string
	Lang      string
	Script    Script
	Outcome   Outcome
}

// Classify coerces the three name parts to one script and settles the language
// code. Latin wins over Cyrillic when both are present.
func Classify(entry, initials, given, declared string) Result {
	res := Result{EntryName: entry, Initials: initials, GivenName: given, Lang: declared, Outcome: OutcomeNoLetters}
	fields := []string{entry, initials, given}

	switch {
	case anyField(fields, isLatin):
		res.Script = ScriptLatin
		res.EntryName = homoglyph.ToLatin(entry)
		res.Initials = homoglyph.ToLatin(initials)
		res.GivenName = homoglyph.ToLatin(given)
		if latinLangs[declared] {
			res.Outcome = OutcomeKept
		} else {
			res.Lang = "eng"
			res.Outcome = OutcomeOverridden
		}

	case anyField(fields, isCyrillic):
		res.Script = ScriptCyrillic
		res.EntryName = homoglyph.ToCyrillic(entry)
		res.Initials = homoglyph.ToCyrillic(initials)
		res.GivenName = homoglyph.ToCyrillic(given)
		// Language markers are only looked for in the entry name.
		switch {
		case cyrillicLangs[declared]:
			res.Outcome = OutcomeKept
		case strings.ContainsAny(res.EntryName, ukrainianMarkers):
			res.Lang = "ukr"
			res.Outcome = OutcomeInferredUkrainian
		case strings.ContainsAny(res.EntryName, russianMarkers):
			res.Lang = "rus"
			res.Outcome = OutcomeInferredRussian
		default:
			res.Lang = ""
			res.Outcome = OutcomeUnrecognized
		}
	}

	return res
}

func anyField(fields []string, pred func(rune) bool) bool {
	for _, f := range fields {
		if strings.IndexFunc(f, pred) >= 0 {
			return true
		}
	}
	return false
}

func isLatin(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isCyrillic(r rune) bool {
	return r >= 0x0400 && r <= 0x04FF
}
