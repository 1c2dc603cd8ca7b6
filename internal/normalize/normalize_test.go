package normalize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobza-harvester/authdedup/internal/models"
)

const shevchenkoXML = `<marc:record xmlns:marc="http://www.loc.gov/MARC21/slim">
  <marc:datafield tag="010" ind1=" " ind2=" "><marc:subfield code="a">0000 0001 2345 6789</marc:subfield></marc:datafield>
  <marc:datafield tag="100" ind1=" " ind2=" "><marc:subfield code="a">20200101aukry50      ba0</marc:subfield></marc:datafield>
  <marc:datafield tag="200" ind1=" " ind2="1">
    <marc:subfield code="a">Шевченко,</marc:subfield>
    <marc:subfield code="g">Тарас Григорович</marc:subfield>
    <marc:subfield code="f">(1814-1861)</marc:subfield>
  </marc:datafield>
  <marc:datafield tag="400" ind1=" " ind2="1">
    <marc:subfield code="8">eng</marc:subfield>
    <marc:subfield code="a">Shevchenko</marc:subfield>
    <marc:subfield code="g">Taras</marc:subfield>
  </marc:datafield>
  <marc:datafield tag="700" ind1=" " ind2="1">
    <marc:subfield code="g">no entry element</marc:subfield>
  </marc:datafield>
</marc:record>`

func TestAuthority(t *testing.T) {
	n := New(nil, Options{}, nil)
	records, warnings, err := n.Authority(models.RawAuthority{EntityID: 1, ServerID: 3, SourceAuthID: "UA-1", XMLRecord: shevchenkoXML})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, records, 2)

	main := records[0]
	assert.Equal(t, models.FieldMain, main.FieldKind)
	assert.Equal(t, "Шевченко", main.EntryName)
	assert.Equal(t, "Тарас Григорович", main.GivenName)
	assert.Equal(t, "Т. Г.", main.Initials)
	assert.Equal(t, "1814-1861", main.Dates)
	assert.Equal(t, "ukr", main.Lang)
	assert.Equal(t, "0000000123456789", main.Identifier)
	assert.Equal(t, "Шевченко Тарас Григорович", main.FullName)
	assert.Equal(t, "UA-1", main.SourceAuthID)
	assert.Equal(t, 3, main.ServerID)

	variant := records[1]
	assert.Equal(t, models.FieldVariant, variant.FieldKind)
	assert.Equal(t, "eng", variant.Lang)
	assert.Equal(t, "Shevchenko Taras", variant.FullName)
	assert.Equal(t, "0000000123456789", variant.Identifier)
}

func TestAuthorityIsIdempotent(t *testing.T) {
	n := New(nil, Options{}, nil)
	raw := models.RawAuthority{EntityID: 1, XMLRecord: shevchenkoXML}
	first, _, err := n.Authority(raw)
	require.NoError(t, err)
	second, _, err := n.Authority(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAuthorityServerQuirks(t *testing.T) {
	raw := "=200  \\1$aFranko$gFranko, Ivan$bI.\n"
	servers := []models.Server{{ID: 7, Name: "quirky", GivenNameRepeatsEntry: true}}
	n := New(servers, Options{}, nil)

	records, _, err := n.Authority(models.RawAuthority{EntityID: 2, ServerID: 7, XMLRecord: raw})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Ivan", records[0].GivenName)
	assert.Equal(t, "I.", records[0].Initials)
	assert.Equal(t, "Franko Ivan", records[0].FullName)
	assert.Equal(t, "eng", records[0].Lang)
}

func TestAuthorityHomoglyphsAndWarnings(t *testing.T) {
	// Latin "e" inside a Cyrillic surname, no language information.
	raw := "=700  \\1$aШeвченко$bТ.\n"
	n := New(nil, Options{}, nil)

	records, warnings, err := n.Authority(models.RawAuthority{EntityID: 3, XMLRecord: raw})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Шевченко", records[0].EntryName)
	assert.Equal(t, "Шевченко Т.", records[0].FullName)
	assert.Empty(t, records[0].Lang)

	require.Len(t, warnings, 1)
	assert.Equal(t, "unrecognized_cyrillic", warnings[0].Kind)
}

func TestAuthorityOrdersHeadingsByField(t *testing.T) {
	raw := "=700  \\1$8eng$aFranko$gIvan\n" +
		"=900  \\1$aIgnored\n" +
		"=200  \\1$aФранко$gІван\n"
	n := New(nil, Options{}, nil)

	records, _, err := n.Authority(models.RawAuthority{EntityID: 5, XMLRecord: raw})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.FieldMain, records[0].FieldKind)
	assert.Equal(t, models.FieldLinked, records[1].FieldKind)
}

func TestLanguage(t *testing.T) {
	tests := []struct {
		name     string
		sub8     string
		field100 string
		kind     models.FieldKind
		expected string
	}{
		{name: "subfield 8 wins", sub8: "rus", field100: "20200101aukry50", kind: models.FieldMain, expected: "rus"},
		{name: "fallback for main", field100: "20200101aukry50", kind: models.FieldMain, expected: "ukr"},
		{name: "no fallback for linked", field100: "20200101aukry50", kind: models.FieldLinked, expected: ""},
		{name: "short 100a", field100: "2020", kind: models.FieldVariant, expected: ""},
		{name: "truncated language code", field100: "20200101auk", kind: models.FieldMain, expected: "uk"},
		{name: "multibyte prefix", field100: "2020０101aukry50", kind: models.FieldMain, expected: "ukr"},
		{name: "invalid subfield 8", sub8: "en", kind: models.FieldLinked, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, language(tt.sub8, tt.field100, tt.kind))
		})
	}
}

func TestRun(t *testing.T) {
	raws := []models.RawAuthority{
		{EntityID: 1, AuthType: "200", XMLRecord: shevchenkoXML},
		{EntityID: 2, AuthType: "200", XMLRecord: "<record><datafield"},
		{EntityID: 3, AuthType: "210", XMLRecord: shevchenkoXML},
		{EntityID: 4, AuthType: "200", XMLRecord: "=200  \\1$gonly given\n"},
	}

	n := New(nil, Options{Workers: 2, AuthTypes: []string{"200"}}, nil)
	byEntity, res, err := n.Run(context.Background(), raws)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Filtered)
	assert.Equal(t, 2, res.Records)

	assert.Len(t, byEntity[1], 2)
	records, ok := byEntity[4]
	assert.True(t, ok, "entity without names must still be reported")
	assert.Empty(t, records)
	_, ok = byEntity[2]
	assert.False(t, ok)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := New(nil, Options{Workers: 1}, nil)
	_, _, err := n.Run(ctx, []models.RawAuthority{{EntityID: 1, XMLRecord: shevchenkoXML}})
	assert.ErrorIs(t, err, context.Canceled)
}
