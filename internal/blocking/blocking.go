// Package blocking derives phonetic blocking keys and groups name records into
// candidate pairs.
package blocking

import (
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/kobza-harvester/authdedup/internal/models"
	"github.com/kobza-harvester/authdedup/internal/translit"
)

// Key is the blocking key of an entry name. ASCII names get their Soundex
// code; anything else is romanized with the language pack and the Soundex
// digits are prefixed with the original first letter.
func Key(entryName, lang string) string {
	if entryName == "" {
		return ""
	}
	first, _ := utf8.DecodeRuneInString(entryName)
	if isASCIILetter(first) {
		return Soundex(entryName)
	}
	code := Soundex(translit.Romanize(entryName, lang))
	if code == "" {
		return ""
	}
	_, size := utf8.DecodeRuneInString(code)
	return string(first) + code[size:]
}

// TranslitKey is the Soundex of the romanized entry name. Cyrillic and Latin
// spellings of one name share it.
func TranslitKey(entryName, lang string) string {
	if entryName == "" {
		return ""
	}
	return Soundex(translit.Romanize(entryName, lang))
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Pair references two records by their index in the blocked population.
// Left is always lower than Right.
type Pair struct {
	Left, Right int
}

// Partition is a group of pairs that share a blocking key.
type Partition struct {
	Key   string
	Pairs []Pair
}

// Options tunes candidate generation.
type Options struct {
	// TranslitPass adds the cross-script pass on TranslitKey.
	TranslitPass bool
	// MaxPartitionSize skips key groups with more records. Zero means unlimited.
	MaxPartitionSize int
}

// Stats summarizes a blocking run.
type Stats struct {
	Partitions        int
	Pairs             int
	SkippedPartitions int
}

// Candidates runs the blocking passes over records. Each pair appears once,
// in the first partition that produced it, and records of the same entity are
// never paired.
func Candidates(records []models.NameRecord, opts Options, logger *slog.Logger) ([]Partition, Stats) {
	if logger == nil {
		logger = slog.Default()
	}

	entryKeys := make(map[string][]int)
	givenKeys := make(map[string][]int)
	translitKeys := make(map[string][]int)
	for i, rec := range records {
		if k := Key(rec.EntryName, rec.Lang); k != "" {
			entryKeys[k] = append(entryKeys[k], i)
		}
		if k := Key(rec.ProcGivenName(), rec.Lang); k != "" {
			givenKeys[k] = append(givenKeys[k], i)
		}
		if opts.TranslitPass {
			if k := TranslitKey(rec.EntryName, rec.Lang); k != "" {
				translitKeys[k] = append(translitKeys[k], i)
			}
		}
	}

	b := &builder{records: records, seen: make(map[Pair]bool), opts: opts, logger: logger}

	for _, key := range sortedKeys(entryKeys) {
		b.add("entry:"+key, entryKeys[key], entryKeys[key])
	}
	for _, key := range sortedKeys(entryKeys) {
		if given, ok := givenKeys[key]; ok {
			b.add("given:"+key, entryKeys[key], given)
		}
	}
	if opts.TranslitPass {
		for _, key := range sortedKeys(translitKeys) {
			b.add("translit:"+key, translitKeys[key], translitKeys[key])
		}
	}

	return b.partitions, b.stats
}

type builder struct {
	records    []models.NameRecord
	seen       map[Pair]bool
	opts       Options
	logger     *slog.Logger
	partitions []Partition
	stats      Stats
}

func (b *builder) add(key string, left, right []int) {
	size := len(left)
	if !sameGroup(left, right) {
		size += len(right)
	}
	if b.opts.MaxPartitionSize > 0 && size > b.opts.MaxPartitionSize {
		b.logger.Warn("Skipping oversize blocking partition", "key", key, "size", size, "limit", b.opts.MaxPartitionSize)
		b.stats.SkippedPartitions++
		return
	}

	var pairs []Pair
	for _, i := range left {
		for _, j := range right {
			if i == j || b.records[i].EntityID == b.records[j].EntityID {
				continue
			}
			p := Pair{Left: min(i, j), Right: max(i, j)}
			if b.seen[p] {
				continue
			}
			b.seen[p] = true
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		return
	}

	sort.Slice(pairs, func(x, y int) bool {
		if pairs[x].Left != pairs[y].Left {
			return pairs[x].Left < pairs[y].Left
		}
		return pairs[x].Right < pairs[y].Right
	})
	b.partitions = append(b.partitions, Partition{Key: key, Pairs: pairs})
	b.stats.Partitions++
	b.stats.Pairs += len(pairs)
}

func sameGroup(a, b []int) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
