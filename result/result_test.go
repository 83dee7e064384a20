package result

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errE = errors.New("e")

func inc(x int) int { return x + 1 }

func TestOkAndErrAreExclusive(t *testing.T) {
	ok := Ok(5)
	assert.True(t, ok.IsOk())
	assert.False(t, ok.IsErr())

	bad := Err[int](errE)
	assert.False(t, bad.IsOk())
	assert.True(t, bad.IsErr())
}

func TestErrNilKeepsInvariant(t *testing.T) {
	r := Err[int](nil)
	require.True(t, r.IsErr())
	assert.ErrorIs(t, r.Error(), ErrNilError)
}

func TestMapOnOk(t *testing.T) {
	r := Ok(5).Map(inc)
	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, 6, v)
}

func TestMapOnErrIsNoop(t *testing.T) {
	r := Err[int](errE).Map(inc)
	require.True(t, r.IsErr())
	assert.Same(t, errE, r.Error())
}

func TestAndThenFlattens(t *testing.T) {
	r := Ok(5).AndThen(func(int) Result[int] { return Err[int](errE) })
	require.True(t, r.IsErr())
	assert.Same(t, errE, r.Error())

	r = Ok(5).AndThen(func(x int) Result[int] { return Ok(x * 2) })
	assert.Equal(t, 10, r.UnwrapOr(0))
}

func TestAndThenOnErrDoesNotCall(t *testing.T) {
	called := false
	r := Err[int](errE).AndThen(func(x int) Result[int] {
		called = true
		return Ok(x)
	})
	assert.False(t, called)
	assert.Same(t, errE, r.Error())
}

func TestOrElse(t *testing.T) {
	recovered := Err[int](errE).OrElse(func(err error) Result[int] {
		assert.Same(t, errE, err)
		return Ok(0)
	})
	assert.Equal(t, 0, recovered.UnwrapOr(-1))
	assert.True(t, recovered.IsOk())

	called := false
	passed := Ok(7).OrElse(func(error) Result[int] {
		called = true
		return Ok(0)
	})
	assert.False(t, called)
	assert.Equal(t, 7, passed.UnwrapOr(-1))
}

func TestUnwrapOrError(t *testing.T) {
	assert.Equal(t, 5, Ok(5).UnwrapOrError())
	assert.Equal(t, errE, Err[int](errE).UnwrapOrError())
}

func TestFromAndTry(t *testing.T) {
	r := From(strconv.Atoi("12"))
	assert.Equal(t, 12, r.UnwrapOr(0))

	r = Try(func() (int, error) { return strconv.Atoi("x") })
	require.True(t, r.IsErr())

	_, err := r.Unwrap()
	assert.Error(t, err)
}

func TestBindAndThenChangeType(t *testing.T) {
	s := Then(Ok(5), strconv.Itoa)
	assert.Equal(t, "5", s.UnwrapOr(""))

	n := Bind(Ok("42"), func(s string) Result[int] { return From(strconv.Atoi(s)) })
	assert.Equal(t, 42, n.UnwrapOr(0))

	failed := Bind(Err[string](errE), func(s string) Result[int] { return Ok(1) })
	assert.Same(t, errE, failed.Error())
}

func TestMapErr(t *testing.T) {
	wrapped := Err[int](errE).MapErr(func(err error) error { return errors.Join(err, errors.New("ctx")) })
	assert.ErrorIs(t, wrapped.Error(), errE)
	assert.True(t, Ok(1).MapErr(func(error) error { return errE }).IsOk())
}

func TestString(t *testing.T) {
	assert.Equal(t, "Ok(6)", Ok(6).String())
	assert.Equal(t, "Err(e)", Err[int](errE).String())
}
