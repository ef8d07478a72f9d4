package runtime

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qiulin/qwery/internal/value"
)

func TestEmptyResultSetYieldsNoRows(t *testing.T) {
	rs := EmptyResultSet()
	_, err := rs.Next()
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, rs.Close())
}

func TestSliceResultSetIteratesThenEOF(t *testing.T) {
	rows := []value.Row{
		value.NewRow([]string{"a"}, []value.Value{value.Int64(1)}),
		value.NewRow([]string{"a"}, []value.Value{value.Int64(2)}),
	}
	rs := NewSliceResultSet(rows)
	r1, err := rs.Next()
	require.NoError(t, err)
	v1, _ := r1.Get("a")
	require.Equal(t, int64(1), mustInt(v1))

	r2, err := rs.Next()
	require.NoError(t, err)
	v2, _ := r2.Get("a")
	require.Equal(t, int64(2), mustInt(v2))

	_, err = rs.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestSliceResultSetCloseExhausts(t *testing.T) {
	rows := []value.Row{value.NewRow([]string{"a"}, []value.Value{value.Int64(1)})}
	rs := NewSliceResultSet(rows)
	require.NoError(t, rs.Close())
	_, err := rs.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestEffectResultSetYieldsRowOnceThenEOF(t *testing.T) {
	row := value.NewRow([]string{"n"}, []value.Value{value.Int64(5)})
	rs := newEffectResultSet(row, true)

	got, err := rs.Next()
	require.NoError(t, err)
	v, _ := got.Get("n")
	require.Equal(t, int64(5), mustInt(v))

	_, err = rs.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestEffectResultSetWithNoRowIsImmediatelyExhausted(t *testing.T) {
	rs := newEffectResultSet(value.Row{}, false)
	_, err := rs.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestCloseAllReturnsFirstErrorButClosesRemaining(t *testing.T) {
	var secondCalled, thirdCalled bool
	err := closeAll(
		func() error { return errors.New("first failure") },
		func() error { secondCalled = true; return errors.New("second failure") },
		nil,
		func() error { thirdCalled = true; return nil },
	)
	require.EqualError(t, err, "first failure")
	require.True(t, secondCalled)
	require.True(t, thirdCalled)
}

func TestCloseAllNoErrorsReturnsNil(t *testing.T) {
	err := closeAll(func() error { return nil }, nil)
	require.NoError(t, err)
}
