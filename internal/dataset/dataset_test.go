package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pimdb/pimdb/internal/schema"
)

func TestParse(t *testing.T) {
	n, err := Parse("title.ratings")
	require.NoError(t, err)
	assert.Equal(t, TitleRatings, n)

	_, err = Parse("title.nonsense")
	require.Error(t, err)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "name.basics.tsv.gz", NameBasics.Filename())
	assert.Equal(t, "name_basics", NameBasics.TableName())
	assert.Equal(t, "title_principals", TitlePrincipals.TableName())
}

func TestAllIsInLoadOrder(t *testing.T) {
	// Every dataset must come after the datasets it references.
	seen := make(map[Name]bool)
	for _, n := range All() {
		for _, req := range n.Requires() {
			assert.True(t, seen[req], "%s requires %s before it", n, req)
		}
		seen[n] = true
	}
	assert.Len(t, seen, 6)
}

func TestRequires(t *testing.T) {
	assert.Empty(t, NameBasics.Requires())
	assert.Equal(t, []Name{TitleBasics}, TitleRatings.Requires())
	assert.ElementsMatch(t, []Name{TitleBasics, NameBasics}, TitlePrincipals.Requires())
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name  string
		names []Name
		want  []Name
	}{
		{
			name:  "standalone dataset",
			names: []Name{NameBasics},
			want:  []Name{NameBasics},
		},
		{
			name:  "pulls in referenced dataset",
			names: []Name{TitleRatings},
			want:  []Name{TitleBasics, TitleRatings},
		},
		{
			name:  "transitive closure in canonical order",
			names: []Name{TitlePrincipals},
			want:  []Name{NameBasics, TitleBasics, TitlePrincipals},
		},
		{
			name:  "input order does not matter",
			names: []Name{TitleRatings, TitleBasics, NameBasics},
			want:  []Name{NameBasics, TitleBasics, TitleRatings},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.names))
		})
	}
}

func TestBuildRegistry(t *testing.T) {
	reg, err := BuildRegistry(Expand(All()))
	require.NoError(t, err)

	tables := reg.Tables()
	require.Len(t, tables, 7, "six datasets plus the audit table")
	assert.Equal(t, AuditTableName, tables[len(tables)-1].Name())

	ratings, ok := reg.Table("title_ratings")
	require.True(t, ok)
	tconst, ok := ratings.Spec("tconst")
	require.True(t, ok)
	assert.Equal(t, schema.TypeReference, tconst.Type)
	assert.Equal(t, schema.TypeText, tconst.Kind, "follows title_basics.tconst")
	assert.Equal(t, "tconst", tconst.RefColumn)

	akas, ok := reg.Table("title_akas")
	require.True(t, ok)
	assert.Equal(t, []string{"title_id", "ordering"}, akas.PrimaryKey())

	audit, ok := reg.Table(AuditTableName)
	require.True(t, ok)
	assert.Equal(t, []string{"dataset", "loaded_at"}, audit.PrimaryKey())
}

func TestBuildRegistrySubset(t *testing.T) {
	// A subset straight from Expand always resolves.
	reg, err := BuildRegistry(Expand([]Name{TitleCrew}))
	require.NoError(t, err)
	_, ok := reg.Table("title_basics")
	assert.True(t, ok)
	_, ok = reg.Table("title_crew")
	assert.True(t, ok)

	// Without the expansion the reference dangles and registration fails
	// fast.
	_, err = BuildRegistry([]Name{TitleCrew})
	require.ErrorIs(t, err, schema.ErrSchema)
}
