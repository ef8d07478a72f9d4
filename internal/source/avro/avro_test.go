package avro

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qiulin/qwery/internal/hints"
	"github.com/qiulin/qwery/internal/iodev"
	"github.com/qiulin/qwery/internal/value"
)

func rawJSON(t *testing.T, s string) json.RawMessage {
	t.Helper()
	return json.RawMessage(s)
}

const userSchema = `{
  "type": "record",
  "name": "User",
  "fields": [
    {"name": "name", "type": "string"},
    {"name": "age", "type": ["null", "long"], "default": null}
  ]
}`

const plainUserSchema = `{
  "type": "record",
  "name": "User",
  "fields": [
    {"name": "name", "type": "string"},
    {"name": "age", "type": "long"}
  ]
}`

func TestClaimsByExtensionOrSchemaHint(t *testing.T) {
	require.True(t, claims("data.avro", hints.Hints{}))
	require.False(t, claims("data.csv", hints.Hints{}))
	require.True(t, claims("data.csv", hints.Hints{}.SetAvroSchema(userSchema)))
}

func TestFieldNamesExtractsTopLevelFieldsInOrder(t *testing.T) {
	names, err := fieldNames(userSchema)
	require.NoError(t, err)
	require.Equal(t, []string{"name", "age"}, names)
}

func TestFieldNamesInvalidSchemaErrors(t *testing.T) {
	_, err := fieldNames("not json")
	require.Error(t, err)
}

func TestSchemaTextInlineJSONPassesThrough(t *testing.T) {
	text, err := schemaText(hints.Hints{}.SetAvroSchema(userSchema))
	require.NoError(t, err)
	require.Equal(t, userSchema, text)
}

func TestSchemaTextReadsFromFileWhenNotInlineJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.avsc")
	require.NoError(t, os.WriteFile(path, []byte(userSchema), 0644))

	text, err := schemaText(hints.Hints{}.SetAvroSchema(path))
	require.NoError(t, err)
	require.Equal(t, userSchema, text)
}

func TestSchemaTextEmptyHintReturnsEmpty(t *testing.T) {
	text, err := schemaText(hints.Hints{})
	require.NoError(t, err)
	require.Equal(t, "", text)
}

func TestSchemaTextMissingFileErrors(t *testing.T) {
	_, err := schemaText(hints.Hints{}.SetAvroSchema("/no/such/schema.avsc"))
	require.Error(t, err)
}

func TestNullableUnionBranchDetectsNullFirstOrSecond(t *testing.T) {
	require.Equal(t, "long", nullableUnionBranch(rawJSON(t, `["null", "long"]`)))
	require.Equal(t, "string", nullableUnionBranch(rawJSON(t, `["string", "null"]`)))
}

func TestNullableUnionBranchNonUnionOrNonNullableReturnsEmpty(t *testing.T) {
	require.Equal(t, "", nullableUnionBranch(rawJSON(t, `"string"`)))
	require.Equal(t, "", nullableUnionBranch(rawJSON(t, `["string", "long"]`)))
	require.Equal(t, "", nullableUnionBranch(rawJSON(t, `["null", {"type":"array","items":"long"}]`)))
}

func TestAvroValueUnwrapsUnionSingleKeyMap(t *testing.T) {
	v := avroValue(map[string]interface{}{"long": int64(42)})
	i, _ := v.AsInt()
	require.Equal(t, int64(42), i)
}

func TestAvroValueNilIsNull(t *testing.T) {
	require.True(t, avroValue(nil).IsNull())
}

func TestAvroValuePassesThroughScalars(t *testing.T) {
	require.Equal(t, "x", avroValue("x").AsString())
	b, _ := avroValue(true).AsBool()
	require.True(t, b)
}

func TestOpenOutputRequiresSchemaHint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avro")
	f := Factory{}
	_, _, err := f.OpenOutput(path, hints.Hints{}, nil)
	require.Error(t, err)
}

func TestOpenOutputInvalidSchemaErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avro")
	f := Factory{}
	_, _, err := f.OpenOutput(path, hints.Hints{}.SetAvroSchema("{not valid avro schema"), nil)
	require.Error(t, err)
}

func TestAvroRoundTripWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.avro")
	f := Factory{}

	dst, ok, err := f.OpenOutput(path, hints.Hints{}.SetAvroSchema(plainUserSchema), nil)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, dst.Write(value.NewRow([]string{"name", "age"}, []value.Value{value.String("Alice"), value.Int64(30)})))
	require.NoError(t, dst.Write(value.NewRow([]string{"name", "age"}, []value.Value{value.String("Bob"), value.Int64(41)})))
	require.NoError(t, dst.Close())

	src, ok, err := f.OpenInput(path, hints.Hints{}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	defer src.Close()

	row1, err := src.Read()
	require.NoError(t, err)
	require.Equal(t, []string{"name", "age"}, row1.Names)
	name, _ := row1.Get("name")
	require.Equal(t, "Alice", name.AsString())
	age, _ := row1.Get("age")
	ai, _ := age.AsInt()
	require.Equal(t, int64(30), ai)

	row2, err := src.Read()
	require.NoError(t, err)
	name2, _ := row2.Get("name")
	require.Equal(t, "Bob", name2.AsString())
	age2, _ := row2.Get("age")
	ai2, _ := age2.AsInt()
	require.Equal(t, int64(41), ai2)

	_, err = src.Read()
	require.ErrorIs(t, err, iodev.ErrEOF)
}

func TestAvroRoundTripWithNullableUnionField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users_nullable.avro")
	f := Factory{}

	dst, ok, err := f.OpenOutput(path, hints.Hints{}.SetAvroSchema(userSchema), nil)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, dst.Write(value.NewRow([]string{"name", "age"}, []value.Value{value.String("Alice"), value.Int64(30)})))
	require.NoError(t, dst.Write(value.NewRow([]string{"name", "age"}, []value.Value{value.String("Bob"), value.Null()})))
	require.NoError(t, dst.Close())

	src, ok, err := f.OpenInput(path, hints.Hints{}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	defer src.Close()

	row1, err := src.Read()
	require.NoError(t, err)
	age1, _ := row1.Get("age")
	ai1, _ := age1.AsInt()
	require.Equal(t, int64(30), ai1)

	row2, err := src.Read()
	require.NoError(t, err)
	age2, _ := row2.Get("age")
	require.True(t, age2.IsNull())
}

func TestOpenInputClaimsFalseForUnmatchedPath(t *testing.T) {
	f := Factory{}
	src, ok, err := f.OpenInput("data.csv", hints.Hints{}, nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, src)
}
