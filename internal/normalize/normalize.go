// Package normalize turns raw authority records into NameRecords: text
// cleaning, homoglyph repair and script classification.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/kobza-harvester/authdedup/internal/homoglyph"
	"github.com/kobza-harvester/authdedup/internal/marc"
	"github.com/kobza-harvester/authdedup/internal/models"
	"github.com/kobza-harvester/authdedup/internal/script"
	"github.com/kobza-harvester/authdedup/internal/textnorm"
)

// Options configures a Normalizer.
type Options struct {
	Workers int
	// AuthTypes limits processing to these authority types. Empty means all.
	AuthTypes []string
}

// Normalizer extracts NameRecords from raw authorities.
type Normalizer struct {
	servers   map[int]models.Server
	authTypes map[string]bool
	workers   int
	logger    *slog.Logger
}

func New(servers []models.Server, opts Options, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{
		servers: make(map[int]models.Server, len(servers)),
		workers: opts.Workers,
		logger:  logger,
	}
	if n.workers <= 0 {
		n.workers = runtime.NumCPU()
	}
	for _, s := range servers {
		n.servers[s.ID] = s
	}
	if len(opts.AuthTypes) > 0 {
		n.authTypes = make(map[string]bool, len(opts.AuthTypes))
		for _, t := range opts.AuthTypes {
			n.authTypes[t] = true
		}
	}
	return n
}

// Warning is a name that could not be classified cleanly. It is reported, not
// fatal.
type Warning struct {
	EntityID int64
	Field    models.FieldKind
	Kind     string
	Text     string
}

// Authority normalizes one raw authority. A record that cannot be parsed
// returns an error; warnings never do.
func (n *Normalizer) Authority(raw models.RawAuthority) ([]models.NameRecord, []Warning, error) {
	rec, err := marc.Parse(raw.XMLRecord)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse authority %d: %w", raw.EntityID, err)
	}

	srv := n.servers[raw.ServerID]
	isni := textnorm.NormalizeISNI(textnorm.Normalize(rec.First("010", "a")))
	field100a := rec.First("100", "a")

	var out []models.NameRecord
	var warnings []Warning
	for _, f := range rec.Fields {
		kind, err := models.ParseFieldKind(f.Tag)
		if err != nil {
			continue
		}
		name, warns := n.nameRecord(raw, srv, kind, f, field100a, isni)
		warnings = append(warnings, warns...)
		if name.EntryName == "" {
			n.logger.Debug("Skipping name without entry element", "auth_id", raw.EntityID, "field", kind)
			continue
		}
		out = append(out, name)
	}
	// Main heading first, then variants, then linked headings.
	sort.SliceStable(out, func(i, j int) bool { return out[i].FieldKind < out[j].FieldKind })
	return out, warnings, nil
}

func (n *Normalizer) nameRecord(raw models.RawAuthority, srv models.Server, kind models.FieldKind, f marc.Field, field100a, isni string) (models.NameRecord, []Warning) {
	entry := textnorm.Normalize(f.Value("a"))
	given := textnorm.NormalizeGivenName(entry, textnorm.Normalize(f.Value("g")), srv.GivenNameRepeatsEntry)

	initials := textnorm.Normalize(f.Value("b"))
	if given != "" {
		initials = textnorm.ToInitials(given)
	}

	var warnings []Warning
	fix := func(text string) string {
		res := homoglyph.Fix(text)
		for _, w := range res.Warnings() {
			warnings = append(warnings, Warning{EntityID: raw.EntityID, Field: kind, Kind: "homoglyph_" + w.Outcome.String(), Text: w.Original})
		}
		return res.Text
	}
	entry, given, initials = fix(entry), fix(given), fix(initials)

	cls := script.Classify(entry, initials, given, language(f.Value("8"), field100a, kind))
	if cls.Outcome == script.OutcomeUnrecognized {
		warnings = append(warnings, Warning{EntityID: raw.EntityID, Field: kind, Kind: "unrecognized_cyrillic", Text: cls.EntryName})
	}

	rest := cls.GivenName
	if rest == "" {
		rest = cls.Initials
	}

	return models.NameRecord{
		EntityID:     raw.EntityID,
		ServerID:     raw.ServerID,
		SourceAuthID: raw.SourceAuthID,
		FieldKind:    kind,
		EntryName:    cls.EntryName,
		GivenName:    cls.GivenName,
		Initials:     cls.Initials,
		Dates:        textnorm.NormalizeDates(f.Value("f")),
		Roman:        textnorm.Normalize(f.Value("d")),
		Identifier:   isni,
		Lang:         cls.Lang,
		FullName:     strings.TrimSpace(cls.EntryName + " " + rest),
	}, warnings
}

// language takes $8 when it is a three letter code; main and variant headings
// fall back to characters 9-11 of 100$a, or whatever part of them is present.
func language(sub8, field100a string, kind models.FieldKind) string {
	if utf8.RuneCountInString(sub8) == 3 {
		return sub8
	}
	if kind != models.FieldMain && kind != models.FieldVariant {
		return ""
	}
	runes := []rune(field100a)
	if len(runes) <= 9 {
		return ""
	}
	return strings.TrimSpace(string(runes[9:min(len(runes), 12)]))
}

// Result counts the outcome of a normalization run.
type Result struct {
	Processed int       `yaml:"processed"`
	Skipped   int       `yaml:"skipped"`
	Filtered  int       `yaml:"filtered"`
	Records   int       `yaml:"records"`
	Warnings  []Warning `yaml:"-"`
}

type outcome struct {
	raw      models.RawAuthority
	records  []models.NameRecord
	warnings []Warning
	err      error
}

// Run normalizes raws on a bounded worker pool. The returned map holds every
// successfully parsed entity, including those that yielded no names, so that
// callers can replace their stored records.
func (n *Normalizer) Run(ctx context.Context, raws []models.RawAuthority) (map[int64][]models.NameRecord, Result, error) {
	var res Result
	var queue []models.RawAuthority
	for _, raw := range raws {
		if n.authTypes != nil && !n.authTypes[raw.AuthType] {
			res.Filtered++
			continue
		}
		queue = append(queue, raw)
	}

	semaphore := make(chan struct{}, n.workers)
	outcomes := make(chan outcome, len(queue))
	var wg sync.WaitGroup

	for _, raw := range queue {
		wg.Add(1)
		go func(raw models.RawAuthority) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			if err := ctx.Err(); err != nil {
				outcomes <- outcome{raw: raw, err: err}
				return
			}
			records, warnings, err := n.Authority(raw)
			outcomes <- outcome{raw: raw, records: records, warnings: warnings, err: err}
		}(raw)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	byEntity := make(map[int64][]models.NameRecord, len(queue))
	for o := range outcomes {
		if o.err != nil {
			if ctx.Err() == nil {
				n.logger.Error("Skipping authority", "auth_id", o.raw.EntityID, "server_id", o.raw.ServerID, "error", o.err)
			}
			res.Skipped++
			continue
		}
		for _, w := range o.warnings {
			n.logger.Warn("Ambiguous name left unchanged", "auth_id", w.EntityID, "field", w.Field, "kind", w.Kind, "text", w.Text)
		}
		res.Warnings = append(res.Warnings, o.warnings...)
		res.Processed++
		res.Records += len(o.records)
		byEntity[o.raw.EntityID] = o.records
	}

	if err := ctx.Err(); err != nil {
		return nil, res, fmt.Errorf("normalization cancelled: %w", err)
	}

	n.logger.Info("Normalization complete",
		"processed", res.Processed,
		"skipped", res.Skipped,
		"filtered", res.Filtered,
		"records", res.Records,
		"warnings", len(res.Warnings))

	return byEntity, res, nil
}
