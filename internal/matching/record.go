package matching

import (
	"regexp"

	"github.com/kobza-harvester/authdedup/internal/models"
)

// Record is a NameRecord with the derived columns used for comparison.
type Record struct {
	models.NameRecord
	ProcGivenName string
	YearOfBirth   string
	YearOfDeath   string
}

var (
	birthYear = regexp.MustCompile(`(\d{4})`)
	deathYear = regexp.MustCompile(`-(\d{4})`)
)

// Prepare derives the comparison columns for every record. The input is not
// modified.
func Prepare(records []models.NameRecord) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = Record{
			NameRecord:    rec,
			ProcGivenName: rec.ProcGivenName(),
		}
		if m := birthYear.FindStringSubmatch(rec.Dates); m != nil {
			out[i].YearOfBirth = m[1]
		}
		if m := deathYear.FindStringSubmatch(rec.Dates); m != nil {
			out[i].YearOfDeath = m[1]
		}
	}
	return out
}
