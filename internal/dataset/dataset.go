// Package dataset declares the schemas of the IMDb public dataset dumps and
// streams their gzipped TSV files as typed records.
package dataset

import (
	"fmt"
	"strings"

	"github.com/pimdb/pimdb/internal/schema"
)

// Name identifies one IMDb dataset dump.
type Name string

const (
	NameBasics      Name = "name.basics"
	TitleAkas       Name = "title.akas"
	TitleBasics     Name = "title.basics"
	TitleCrew       Name = "title.crew"
	TitlePrincipals Name = "title.principals"
	TitleRatings    Name = "title.ratings"
)

// AuditTableName is the table recording one row per loaded dataset.
const AuditTableName = "dataset_load"

// All lists every dataset in load order: tables referenced by others come
// first.
func All() []Name {
	return []Name{NameBasics, TitleBasics, TitleAkas, TitleCrew, TitlePrincipals, TitleRatings}
}

// Parse returns the dataset with the given name.
func Parse(s string) (Name, error) {
	for _, n := range All() {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown dataset %q", s)
}

// Filename is the compressed dump file name, e.g. "name.basics.tsv.gz".
func (n Name) Filename() string { return string(n) + ".tsv.gz" }

// TableName is the name used for SQL tables, e.g. "name_basics".
func (n Name) TableName() string { return strings.ReplaceAll(string(n), ".", "_") }

// field maps one TSV column of a dump onto a table column.
type field struct {
	tsv    string
	column schema.Column
}

var datasetFields = map[Name][]field{
	NameBasics: {
		{"nconst", schema.Column{Name: "nconst", Type: schema.TypeText}},
		{"primaryName", schema.Column{Name: "primary_name", Type: schema.TypeText}},
		{"birthYear", schema.Column{Name: "birth_year", Type: schema.TypeInteger, Nullable: true}},
		{"deathYear", schema.Column{Name: "death_year", Type: schema.TypeInteger, Nullable: true}},
		{"primaryProfession", schema.Column{Name: "primary_profession", Type: schema.TypeText, Nullable: true}},
		{"knownForTitles", schema.Column{Name: "known_for_titles", Type: schema.TypeText, Nullable: true}},
	},
	TitleBasics: {
		{"tconst", schema.Column{Name: "tconst", Type: schema.TypeText}},
		{"titleType", schema.Column{Name: "title_type", Type: schema.TypeText}},
		{"primaryTitle", schema.Column{Name: "primary_title", Type: schema.TypeText, Nullable: true}},
		{"originalTitle", schema.Column{Name: "original_title", Type: schema.TypeText, Nullable: true}},
		{"isAdult", schema.Column{Name: "is_adult", Type: schema.TypeBoolean}},
		{"startYear", schema.Column{Name: "start_year", Type: schema.TypeInteger, Nullable: true}},
		{"endYear", schema.Column{Name: "end_year", Type: schema.TypeInteger, Nullable: true}},
		{"runtimeMinutes", schema.Column{Name: "runtime_minutes", Type: schema.TypeInteger, Nullable: true}},
		{"genres", schema.Column{Name: "genres", Type: schema.TypeText, Nullable: true}},
	},
	TitleAkas: {
		{"titleId", schema.Column{Name: "title_id", Type: schema.TypeReference, RefTable: "title_basics"}},
		{"ordering", schema.Column{Name: "ordering", Type: schema.TypeInteger}},
		{"title", schema.Column{Name: "title", Type: schema.TypeText, Nullable: true}},
		{"region", schema.Column{Name: "region", Type: schema.TypeText, Nullable: true}},
		{"language", schema.Column{Name: "language", Type: schema.TypeText, Nullable: true}},
		{"types", schema.Column{Name: "types", Type: schema.TypeText, Nullable: true}},
		{"attributes", schema.Column{Name: "attributes", Type: schema.TypeText, Nullable: true}},
		{"isOriginalTitle", schema.Column{Name: "is_original_title", Type: schema.TypeBoolean, Nullable: true}},
	},
	TitleCrew: {
		{"tconst", schema.Column{Name: "tconst", Type: schema.TypeReference, RefTable: "title_basics"}},
		{"directors", schema.Column{Name: "directors", Type: schema.TypeText, Nullable: true}},
		{"writers", schema.Column{Name: "writers", Type: schema.TypeText, Nullable: true}},
	},
	TitlePrincipals: {
		{"tconst", schema.Column{Name: "tconst", Type: schema.TypeReference, RefTable: "title_basics"}},
		{"ordering", schema.Column{Name: "ordering", Type: schema.TypeInteger}},
		{"nconst", schema.Column{Name: "nconst", Type: schema.TypeReference, RefTable: "name_basics"}},
		{"category", schema.Column{Name: "category", Type: schema.TypeText}},
		{"job", schema.Column{Name: "job", Type: schema.TypeText, Nullable: true}},
		{"characters", schema.Column{Name: "characters", Type: schema.TypeText, Nullable: true}},
	},
	TitleRatings: {
		{"tconst", schema.Column{Name: "tconst", Type: schema.TypeReference, RefTable: "title_basics"}},
		// The logical type set has no fractional type; ratings are kept
		// as their exact decimal text.
		{"averageRating", schema.Column{Name: "average_rating", Type: schema.TypeText}},
		{"numVotes", schema.Column{Name: "num_votes", Type: schema.TypeInteger}},
	},
}

var datasetPrimaryKeys = map[Name][]string{
	NameBasics:      {"nconst"},
	TitleBasics:     {"tconst"},
	TitleAkas:       {"title_id", "ordering"},
	TitleCrew:       {"tconst"},
	TitlePrincipals: {"tconst", "ordering"},
	TitleRatings:    {"tconst"},
}

// datasetKeyColumns names the TSV columns that identify a row in the dump;
// later rows with a key already seen are dropped as duplicates.
var datasetKeyColumns = map[Name][]string{
	NameBasics:      {"nconst"},
	TitleAkas:       {"titleId", "ordering"},
	TitleBasics:     {"tconst"},
	TitleCrew:       {"tconst"},
	TitlePrincipals: {"nconst", "tconst"},
	TitleRatings:    {"tconst"},
}

// KeyColumns returns the TSV columns used for duplicate suppression.
func (n Name) KeyColumns() []string { return datasetKeyColumns[n] }

// Requires lists the datasets whose tables n references.
func (n Name) Requires() []Name {
	var out []Name
	for _, f := range datasetFields[n] {
		if f.column.Type != schema.TypeReference {
			continue
		}
		for _, other := range All() {
			if other.TableName() == f.column.RefTable {
				out = append(out, other)
			}
		}
	}
	return out
}

// Expand returns names plus every dataset they transitively reference, in
// canonical load order.
func Expand(names []Name) []Name {
	wanted := make(map[Name]bool, len(names))
	var add func(n Name)
	add = func(n Name) {
		if wanted[n] {
			return
		}
		wanted[n] = true
		for _, req := range n.Requires() {
			add(req)
		}
	}
	for _, n := range names {
		add(n)
	}

	var out []Name
	for _, n := range All() {
		if wanted[n] {
			out = append(out, n)
		}
	}
	return out
}

// BuildRegistry declares the tables for the given datasets, in canonical
// order, plus the dataset_load audit table. The caller is expected to pass
// the result of Expand so references resolve.
func BuildRegistry(names []Name) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, n := range names {
		fields := datasetFields[n]
		columns := make([]schema.Column, len(fields))
		for i, f := range fields {
			columns[i] = f.column
		}
		if _, err := reg.NewTable(n.TableName(), columns, datasetPrimaryKeys[n]...); err != nil {
			return nil, err
		}
	}
	if _, err := reg.NewTable(AuditTableName, []schema.Column{
		{Name: "dataset", Type: schema.TypeText},
		{Name: "loaded_at", Type: schema.TypeTimestamp},
		{Name: "row_count", Type: schema.TypeInteger},
	}, "dataset", "loaded_at"); err != nil {
		return nil, err
	}
	return reg, nil
}
