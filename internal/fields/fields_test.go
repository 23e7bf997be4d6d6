package fields

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	sel, err := Parse("content, author(nickname,country(code)),tags(name),content")
	require.NoError(t, err)
	assert.Equal(t, []string{"author", "content", "tags"}, sel.Names())
	assert.Equal(t, Selection{"nickname": nil, "country": Selection{"code": nil}}, sel["author"])
	assert.Equal(t, "author(country(code),nickname),content,tags(name)", sel.String())

	sel, err = Parse("")
	require.NoError(t, err)
	assert.Empty(t, sel)

	sel, err = Parse("a,,b,")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sel.Names())
}

func TestParseMergesDuplicates(t *testing.T) {
	sel, err := Parse("author(a),author(b),author")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sel["author"].Names())
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"a(", "a()", "a)b", "a b", "a(b", "-x"} {
		_, err := Parse(in)
		var se *SyntaxError
		assert.True(t, errors.As(err, &se), in)
	}
}

func TestMergeClone(t *testing.T) {
	a := Of("id", "title")
	b := Selection{"author": Of("nickname")}
	m := a.Clone().Merge(b)
	assert.Equal(t, []string{"author", "id", "title"}, m.Names())
	assert.Len(t, a, 2)

	m.Merge(Selection{"author": Of("email")})
	assert.Equal(t, []string{"email", "nickname"}, m["author"].Names())
	assert.Equal(t, []string{"nickname"}, b["author"].Names())
}
