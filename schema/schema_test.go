package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSchema() *Schema {
	return New(0,
		NestedField{ID: 1, Name: "id", Type: LongType, Required: true},
		NestedField{ID: 2, Name: "region", Type: StringType},
		NestedField{ID: 3, Name: "metrics", Type: StructType{FieldList: []NestedField{
			{ID: 4, Name: "count", Type: IntType},
		}}},
	)
}

func TestResolveNested(t *testing.T) {
	s := baseSchema()

	f, err := s.Resolve(4)
	require.NoError(t, err)
	assert.Equal(t, "count", f.Name)

	_, err = s.Resolve(99)
	assert.ErrorIs(t, err, ErrUnknownFieldID)
}

func TestEvolveAddAssignsFreshIDs(t *testing.T) {
	s := baseSchema()

	evolved, lastID, err := Evolve(s, 1, s.HighestFieldID(), AddField{Name: "score", Type: DoubleType})
	require.NoError(t, err)
	assert.Equal(t, 5, lastID)

	f, err := evolved.Resolve(5)
	require.NoError(t, err)
	assert.Equal(t, "score", f.Name)
	assert.False(t, f.Required, "added fields must be optional")

	// Existing fields keep their IDs.
	f, err = evolved.Resolve(2)
	require.NoError(t, err)
	assert.Equal(t, "region", f.Name)
}

func TestEvolveNestedTypeGetsFreshIDs(t *testing.T) {
	s := baseSchema()

	evolved, lastID, err := Evolve(s, 1, 4, AddField{
		Name: "tags",
		Type: ListType{Element: StringType, ElementRequired: false},
	})
	require.NoError(t, err)
	assert.Equal(t, 6, lastID, "list element takes its own ID")

	f, err := evolved.Resolve(5)
	require.NoError(t, err)
	lt, ok := f.Type.(ListType)
	require.True(t, ok)
	assert.Equal(t, 6, lt.ElementID)
}

func TestEvolveDropNeverReusesIDs(t *testing.T) {
	s := baseSchema()

	dropped, lastID, err := Evolve(s, 1, 4, DropField{FieldID: 2})
	require.NoError(t, err)
	_, err = dropped.Resolve(2)
	assert.ErrorIs(t, err, ErrUnknownFieldID)

	// Re-adding the same name continues the counter instead of reviving 2.
	readded, lastID, err := Evolve(dropped, 2, lastID, AddField{Name: "region", Type: StringType})
	require.NoError(t, err)
	assert.Equal(t, 5, lastID)

	f, err := readded.Resolve(5)
	require.NoError(t, err)
	assert.Equal(t, "region", f.Name)
}

func TestEvolveRenameKeepsID(t *testing.T) {
	s := baseSchema()

	evolved, _, err := Evolve(s, 1, 4, RenameField{FieldID: 2, NewName: "zone"})
	require.NoError(t, err)

	f, err := evolved.Resolve(2)
	require.NoError(t, err)
	assert.Equal(t, "zone", f.Name)
}

func TestEvolveWiden(t *testing.T) {
	s := New(0,
		NestedField{ID: 1, Name: "n", Type: IntType},
		NestedField{ID: 2, Name: "f", Type: FloatType},
		NestedField{ID: 3, Name: "d", Type: DecimalType{Precision: 9, Scale: 2}},
	)

	evolved, _, err := Evolve(s, 1, 3,
		WidenField{FieldID: 1, NewType: LongType},
		WidenField{FieldID: 2, NewType: DoubleType},
		WidenField{FieldID: 3, NewType: DecimalType{Precision: 18, Scale: 2}},
	)
	require.NoError(t, err)

	f, _ := evolved.Resolve(1)
	assert.Equal(t, LongType, f.Type)
	f, _ = evolved.Resolve(3)
	assert.Equal(t, DecimalType{Precision: 18, Scale: 2}, f.Type)
}

func TestEvolveWidenRejected(t *testing.T) {
	s := New(0,
		NestedField{ID: 1, Name: "n", Type: LongType},
		NestedField{ID: 2, Name: "d", Type: DecimalType{Precision: 9, Scale: 2}},
	)

	// Narrowing.
	_, _, err := Evolve(s, 1, 2, WidenField{FieldID: 1, NewType: IntType})
	assert.ErrorIs(t, err, ErrIncompatibleChange)

	// Scale change.
	_, _, err = Evolve(s, 1, 2, WidenField{FieldID: 2, NewType: DecimalType{Precision: 18, Scale: 4}})
	assert.ErrorIs(t, err, ErrIncompatibleChange)
}

func TestEvolveNameCollision(t *testing.T) {
	s := baseSchema()

	_, _, err := Evolve(s, 1, 4, AddField{Name: "region", Type: StringType})
	assert.ErrorIs(t, err, ErrIncompatibleChange)
}

func TestEvolveMakeOptional(t *testing.T) {
	s := baseSchema()

	evolved, _, err := Evolve(s, 1, 4, MakeOptional{FieldID: 1})
	require.NoError(t, err)

	f, _ := evolved.Resolve(1)
	assert.False(t, f.Required)
}

func TestEvolveDoesNotMutateBase(t *testing.T) {
	s := baseSchema()

	_, _, err := Evolve(s, 1, 4,
		RenameField{FieldID: 4, NewName: "total"},
		DropField{FieldID: 2},
	)
	require.NoError(t, err)

	f, err := s.Resolve(4)
	require.NoError(t, err)
	assert.Equal(t, "count", f.Name)
	_, err = s.Resolve(2)
	assert.NoError(t, err)
}

func TestProjectKeepsAncestors(t *testing.T) {
	s := baseSchema()

	p, err := Project(s, []int{4})
	require.NoError(t, err)
	require.Len(t, p.Fields, 1)
	assert.Equal(t, "metrics", p.Fields[0].Name)

	st, ok := p.Fields[0].Type.(StructType)
	require.True(t, ok)
	require.Len(t, st.FieldList, 1)
	assert.Equal(t, "count", st.FieldList[0].Name)
}

func nestedContainerSchema() *Schema {
	return New(0,
		NestedField{ID: 1, Name: "id", Type: LongType, Required: true},
		NestedField{ID: 2, Name: "tags", Type: ListType{ElementID: 3, Element: StringType}},
		NestedField{ID: 4, Name: "points", Type: ListType{ElementID: 5, Element: StructType{FieldList: []NestedField{
			{ID: 6, Name: "x", Type: IntType},
			{ID: 7, Name: "y", Type: IntType},
		}}}},
		NestedField{ID: 8, Name: "attrs", Type: MapType{KeyID: 9, Key: StringType, ValueID: 10, Value: StructType{FieldList: []NestedField{
			{ID: 11, Name: "weight", Type: FloatType},
		}}}},
	)
}

func TestProjectListElement(t *testing.T) {
	s := nestedContainerSchema()

	// Selecting the element ID keeps the whole list field.
	p, err := Project(s, []int{3})
	require.NoError(t, err)
	require.Len(t, p.Fields, 1)
	assert.Equal(t, "tags", p.Fields[0].Name)
	assert.Equal(t, ListType{ElementID: 3, Element: StringType}, p.Fields[0].Type)
}

func TestProjectStructInsideList(t *testing.T) {
	s := nestedContainerSchema()

	p, err := Project(s, []int{6})
	require.NoError(t, err)
	require.Len(t, p.Fields, 1)
	assert.Equal(t, "points", p.Fields[0].Name)

	lt, ok := p.Fields[0].Type.(ListType)
	require.True(t, ok)
	st, ok := lt.Element.(StructType)
	require.True(t, ok)
	require.Len(t, st.FieldList, 1)
	assert.Equal(t, "x", st.FieldList[0].Name)
}

func TestProjectStructInsideMapValue(t *testing.T) {
	s := nestedContainerSchema()

	p, err := Project(s, []int{11})
	require.NoError(t, err)
	require.Len(t, p.Fields, 1)
	assert.Equal(t, "attrs", p.Fields[0].Name)

	mt, ok := p.Fields[0].Type.(MapType)
	require.True(t, ok)
	st, ok := mt.Value.(StructType)
	require.True(t, ok)
	require.Len(t, st.FieldList, 1)
	assert.Equal(t, "weight", st.FieldList[0].Name)
}

func TestEvolveInsideListElement(t *testing.T) {
	s := nestedContainerSchema()

	evolved, _, err := Evolve(s, 1, s.HighestFieldID(),
		RenameField{FieldID: 6, NewName: "lon"},
		WidenField{FieldID: 7, NewType: LongType},
	)
	require.NoError(t, err)

	f, err := evolved.Resolve(6)
	require.NoError(t, err)
	assert.Equal(t, "lon", f.Name)
	f, err = evolved.Resolve(7)
	require.NoError(t, err)
	assert.Equal(t, LongType, f.Type)

	// The base schema is untouched.
	f, err = s.Resolve(6)
	require.NoError(t, err)
	assert.Equal(t, "x", f.Name)
}

func TestEvolveDropInsideMapValue(t *testing.T) {
	s := nestedContainerSchema()

	evolved, _, err := Evolve(s, 1, s.HighestFieldID(), DropField{FieldID: 11})
	require.NoError(t, err)

	_, err = evolved.Resolve(11)
	assert.ErrorIs(t, err, ErrUnknownFieldID)

	f, err := evolved.Resolve(8)
	require.NoError(t, err)
	mt, ok := f.Type.(MapType)
	require.True(t, ok)
	st, ok := mt.Value.(StructType)
	require.True(t, ok)
	assert.Empty(t, st.FieldList)
}

func TestProjectUnknownField(t *testing.T) {
	_, err := Project(baseSchema(), []int{1, 42})
	assert.ErrorIs(t, err, ErrUnknownFieldID)
}

func TestEqualsIgnoresSchemaID(t *testing.T) {
	a := baseSchema()
	b := New(7, a.Fields...)
	assert.True(t, a.Equals(b))

	c, _, err := Evolve(a, 1, 4, RenameField{FieldID: 2, NewName: "zone"})
	require.NoError(t, err)
	assert.False(t, a.Equals(c))
}
