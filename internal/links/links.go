// Package links turns clusters into per-server merge recommendations.
package links

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kobza-harvester/authdedup/internal/models"
)

// MergeLink recommends merging a duplicate authority into a canonical one on
// the same server.
type MergeLink struct {
	ServerID        int
	ClusterID       int64
	Lang            string
	CanonicalEntity int64
	CanonicalAuthID string
	CanonicalName   string
	DuplicateEntity int64
	DuplicateAuthID string
	DuplicateName   string
	URL             string
}

// Line renders the link as url, cluster id, canonical name and duplicate name
// separated by tabs.
func (l MergeLink) Line() string {
	return strings.Join([]string{l.URL, strconv.FormatInt(l.ClusterID, 10), l.CanonicalName, l.DuplicateName}, "\t")
}

// MergeURL builds the merge endpoint URL for two source authority ids.
func MergeURL(endpoint, canonical, duplicate string) string {
	return fmt.Sprintf("%s/merge?authid=%s&authid=%s",
		strings.TrimRight(endpoint, "/"), url.QueryEscape(canonical), url.QueryEscape(duplicate))
}

// Input is the snapshot the generator works from.
type Input struct {
	Servers  []models.Server
	Records  []models.NameRecord
	Clusters map[int64]int64 // entity id -> cluster id
	Usage    map[int64]int   // entity id -> usage count
}

// Result holds the links per server id and the servers that were skipped.
type Result struct {
	Links   map[int][]MergeLink
	Skipped []int
}

// Generator produces merge links, one server per goroutine.
type Generator struct {
	logger  *slog.Logger
	workers int
}

func NewGenerator(logger *slog.Logger, workers int) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Generator{logger: logger, workers: workers}
}

// Generate builds the links of every registered server and of every server
// the clustered records come from. A server without an endpoint, including one
// missing from the registry, is logged and skipped.
func (g *Generator) Generate(ctx context.Context, in Input) (Result, error) {
	byServer := make(map[int][]models.NameRecord)
	for _, rec := range in.Records {
		if _, ok := in.Clusters[rec.EntityID]; !ok {
			continue
		}
		if rec.FieldKind != models.FieldMain && rec.FieldKind != models.FieldLinked {
			continue
		}
		byServer[rec.ServerID] = append(byServer[rec.ServerID], rec)
	}

	// Servers that only appear on records have no registry row and so no
	// endpoint.
	registered := make(map[int]bool, len(in.Servers))
	servers := append([]models.Server(nil), in.Servers...)
	for _, srv := range in.Servers {
		registered[srv.ID] = true
	}
	for id := range byServer {
		if !registered[id] {
			servers = append(servers, models.Server{ID: id})
			registered[id] = true
		}
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })

	perServer := make([][]MergeLink, len(servers))
	skipped := make([]bool, len(servers))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, srv := range servers {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if strings.TrimSpace(srv.Endpoint) == "" {
				g.logger.Error("Server has no endpoint, skipping merge links", "server_id", srv.ID, "server", srv.Name)
				skipped[i] = true
				return nil
			}
			perServer[i] = serverLinks(srv, byServer[srv.ID], in.Clusters, in.Usage)
			g.logger.Debug("Generated merge links", "server_id", srv.ID, "links", len(perServer[i]))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{}, fmt.Errorf("failed to generate merge links: %w", err)
	}

	res := Result{Links: make(map[int][]MergeLink)}
	for i, srv := range servers {
		if skipped[i] {
			res.Skipped = append(res.Skipped, srv.ID)
			continue
		}
		res.Links[srv.ID] = perServer[i]
	}
	return res, nil
}

type groupKey struct {
	cluster int64
	lang    string
}

func serverLinks(srv models.Server, records []models.NameRecord, clusters map[int64]int64, usage map[int64]int) []MergeLink {
	// Members without a language join the only known language of their cluster.
	langs := make(map[int64]map[string]bool)
	for _, rec := range records {
		if rec.Lang == "" {
			continue
		}
		cid := clusters[rec.EntityID]
		if langs[cid] == nil {
			langs[cid] = make(map[string]bool)
		}
		langs[cid][rec.Lang] = true
	}

	groups := make(map[groupKey][]models.NameRecord)
	for _, rec := range records {
		cid := clusters[rec.EntityID]
		lang := rec.Lang
		if lang == "" && len(langs[cid]) == 1 {
			for only := range langs[cid] {
				lang = only
			}
		}
		k := groupKey{cluster: cid, lang: lang}
		groups[k] = append(groups[k], rec)
	}

	var out []MergeLink
	for k, members := range groups {
		members = dedupeBySource(members)
		if len(members) < 2 {
			continue
		}
		canonical := pickCanonical(members, usage)
		for _, m := range members {
			if m.SourceAuthID == canonical.SourceAuthID {
				continue
			}
			out = append(out, MergeLink{
				ServerID:        srv.ID,
				ClusterID:       k.cluster,
				Lang:            k.lang,
				CanonicalEntity: canonical.EntityID,
				CanonicalAuthID: canonical.SourceAuthID,
				CanonicalName:   canonical.FullName,
				DuplicateEntity: m.EntityID,
				DuplicateAuthID: m.SourceAuthID,
				DuplicateName:   m.FullName,
				URL:             MergeURL(srv.Endpoint, canonical.SourceAuthID, m.SourceAuthID),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Line() < out[j].Line() })
	return out
}

// dedupeBySource keeps one record per source authority id, MAIN before LINKED.
func dedupeBySource(records []models.NameRecord) []models.NameRecord {
	sorted := append([]models.NameRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SourceAuthID != sorted[j].SourceAuthID {
			return sorted[i].SourceAuthID < sorted[j].SourceAuthID
		}
		return sorted[i].FieldKind < sorted[j].FieldKind
	})

	var out []models.NameRecord
	for _, rec := range sorted {
		if len(out) > 0 && out[len(out)-1].SourceAuthID == rec.SourceAuthID {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// pickCanonical returns the most used member, breaking ties by the lowest
// entity id.
func pickCanonical(members []models.NameRecord, usage map[int64]int) models.NameRecord {
	best := members[0]
	for _, m := range members[1:] {
		bu, mu := usage[best.EntityID], usage[m.EntityID]
		if mu > bu || (mu == bu && m.EntityID < best.EntityID) {
			best = m
		}
	}
	return best
}

// FileName is the link file of a server.
func FileName(serverID int) string {
	return fmt.Sprintf("links_server_%d.txt", serverID)
}

// Write replaces the link file of every generated server in dir. Lines are
// sorted and unique. It returns the written paths.
func Write(dir string, res Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create links directory: %w", err)
	}

	ids := make([]int, 0, len(res.Links))
	for id := range res.Links {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var paths []string
	for _, id := range ids {
		path := filepath.Join(dir, FileName(id))
		if err := writeFile(path, res.Links[id]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, links []MergeLink) error {
	seen := make(map[string]bool, len(links))
	lines := make([]string, 0, len(links))
	for _, l := range links {
		line := l.Line()
		if seen[line] {
			continue
		}
		seen[line] = true
		lines = append(lines, line)
	}
	sort.Strings(lines)

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
