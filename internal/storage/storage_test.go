package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobza-harvester/authdedup/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestServers(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertServers(ctx, []models.Server{
		{ID: 2, Name: "lviv", Endpoint: "https://lviv.example.org"},
		{ID: 1, Name: "kyiv"},
	}))
	require.NoError(t, s.UpsertServers(ctx, []models.Server{
		{ID: 1, Name: "kyiv", Endpoint: "https://kyiv.example.org", GivenNameRepeatsEntry: true},
	}))

	servers, err := s.Servers(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, models.Server{ID: 1, Name: "kyiv", Endpoint: "https://kyiv.example.org", GivenNameRepeatsEntry: true}, servers[0])
	assert.Equal(t, "lviv", servers[1].Name)
}

func TestAuthorities(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	n, err := s.ImportAuthorities(ctx, []models.RawAuthority{
		{EntityID: 5, ServerID: 1, SourceAuthID: "A5", AuthType: "200", UsedCount: 2, XMLRecord: "<record/>"},
		{EntityID: 3, ServerID: 1, SourceAuthID: "A3", AuthType: "200", UsedCount: 9, XMLRecord: "<record/>"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-import replaces by auth id.
	_, err = s.ImportAuthorities(ctx, []models.RawAuthority{{EntityID: 5, ServerID: 1, SourceAuthID: "A5", AuthType: "200", UsedCount: 4}})
	require.NoError(t, err)

	all, err := s.RawAuthorities(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(3), all[0].EntityID)

	one, err := s.RawAuthorities(ctx, 5)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, 4, one[0].UsedCount)

	usage, err := s.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{3: 9, 5: 4}, usage)
}

func TestReplaceNameRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.NameRecords(ctx)
	assert.ErrorIs(t, err, ErrNoRecords)

	first := map[int64][]models.NameRecord{
		1: {
			{EntityID: 1, ServerID: 1, SourceAuthID: "A1", FieldKind: models.FieldMain, EntryName: "Шевченко", Lang: "ukr", FullName: "Шевченко Тарас"},
			{EntityID: 1, ServerID: 1, SourceAuthID: "A1", FieldKind: models.FieldVariant, EntryName: "Shevchenko", Lang: "eng", FullName: "Shevchenko Taras"},
		},
		2: {{EntityID: 2, ServerID: 1, SourceAuthID: "A2", FieldKind: models.FieldMain, EntryName: "Franko", Lang: "eng"}},
	}
	require.NoError(t, s.ReplaceNameRecords(ctx, first))

	records, err := s.NameRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, models.FieldVariant, records[1].FieldKind)
	assert.NotZero(t, records[0].ID)

	// Re-normalizing entity 1 replaces its names and leaves entity 2 alone.
	require.NoError(t, s.ReplaceNameRecords(ctx, map[int64][]models.NameRecord{
		1: {{EntityID: 1, ServerID: 1, SourceAuthID: "A1", FieldKind: models.FieldMain, EntryName: "Шевченко", Lang: "ukr"}},
	}))
	records, err = s.NameRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// An empty entry name rolls the whole batch back.
	err = s.ReplaceNameRecords(ctx, map[int64][]models.NameRecord{
		2: {{EntityID: 2, FieldKind: models.FieldMain}},
	})
	require.Error(t, err)
	records, err = s.NameRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestReplaceClusters(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.ReplaceClusters(ctx, "run-1", []models.ClusterAssignment{{EntityID: 4, ClusterID: 2}, {EntityID: 2, ClusterID: 2}}))
	require.NoError(t, s.ReplaceClusters(ctx, "run-2", []models.ClusterAssignment{{EntityID: 9, ClusterID: 7}, {EntityID: 7, ClusterID: 7}}))

	clusters, err := s.Clusters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.ClusterAssignment{{EntityID: 7, ClusterID: 7}, {EntityID: 9, ClusterID: 7}}, clusters)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authdedup.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertServers(context.Background(), []models.Server{{ID: 1, Name: "kyiv"}}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	servers, err := reopened.Servers(context.Background())
	require.NoError(t, err)
	assert.Len(t, servers, 1)
}
