package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueNative(t *testing.T) {
	assert.Equal(t, "a", Text("a").Native())
	assert.Equal(t, int64(7), Int(7).Native())
	assert.Equal(t, true, Bool(true).Native())
	assert.Nil(t, Null().Native())
	assert.True(t, Null().IsNull())
}

func TestTimestampNormalization(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	v := Timestamp(time.Date(2020, 4, 1, 13, 30, 0, 123456789, loc))

	ts := v.Native().(time.Time)
	assert.Equal(t, time.UTC, ts.Location())
	assert.Equal(t, 12, ts.Hour(), "converted to UTC")
	assert.Equal(t, 123456000, ts.Nanosecond(), "truncated to microseconds")
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		typ     LogicalType
		input   string
		want    any
		wantErr bool
	}{
		{name: "text", typ: TypeText, input: "tt0000001", want: "tt0000001"},
		{name: "integer", typ: TypeInteger, input: "1894", want: int64(1894)},
		{name: "negative integer", typ: TypeInteger, input: "-3", want: int64(-3)},
		{name: "bad integer", typ: TypeInteger, input: "abc", wantErr: true},
		{name: "boolean zero", typ: TypeBoolean, input: "0", want: false},
		{name: "boolean one", typ: TypeBoolean, input: "1", want: true},
		{name: "boolean word", typ: TypeBoolean, input: "true", want: true},
		{name: "bad boolean", typ: TypeBoolean, input: "2", wantErr: true},
		{name: "timestamp", typ: TypeTimestamp, input: "2020-04-01T12:30:00Z",
			want: time.Date(2020, 4, 1, 12, 30, 0, 0, time.UTC)},
		{name: "bad timestamp", typ: TypeTimestamp, input: "yesterday", wantErr: true},
		{name: "reference is not parseable directly", typ: TypeReference, input: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseValue(tt.typ, tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Native())
		})
	}
}

func TestValidateRecord(t *testing.T) {
	reg := NewRegistry()
	person, err := reg.NewTable("person", []Column{
		{Name: "id", Type: TypeInteger},
		{Name: "name", Type: TypeText},
		{Name: "nickname", Type: TypeText, Nullable: true},
	}, "id")
	require.NoError(t, err)

	tests := []struct {
		name    string
		record  Record
		wantErr string
	}{
		{
			name:   "valid",
			record: Record{"id": Int(1), "name": Text("A"), "nickname": Text("a")},
		},
		{
			name:   "nullable column absent",
			record: Record{"id": Int(1), "name": Text("A")},
		},
		{
			name:   "nullable column null",
			record: Record{"id": Int(1), "name": Text("A"), "nickname": Null()},
		},
		{
			name:    "undeclared column",
			record:  Record{"id": Int(1), "name": Text("A"), "age": Int(3)},
			wantErr: "value for undeclared column",
		},
		{
			name:    "null primary key",
			record:  Record{"name": Text("A")},
			wantErr: "null value for primary key column",
		},
		{
			name:    "null for not null column",
			record:  Record{"id": Int(1), "name": Null()},
			wantErr: "null value for NOT NULL column",
		},
		{
			name:    "kind mismatch",
			record:  Record{"id": Int(1), "name": Int(2)},
			wantErr: "value of type INTEGER for TEXT column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := person.ValidateRecord(tt.record)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrSchema)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
