package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Wildcard(t *testing.T) {
	s, err := Compile("*", nil)
	require.NoError(t, err)
	assert.Equal(t, KindWildcard, s.Kind())
	assert.True(t, s.MatchOne("anything"))
	assert.True(t, s.MatchOne(""))
}

func TestCompile_LiteralMatchesItself(t *testing.T) {
	s, err := Compile("https://example.com/a", nil)
	require.NoError(t, err)
	assert.Equal(t, KindLiteral, s.Kind())
	assert.True(t, s.MatchOne("https://example.com/a"))
	assert.False(t, s.MatchOne("https://example.com/b"))
}

func TestCompile_TemplateMatchesOneSegment(t *testing.T) {
	s, err := Compile("https://example.com/books/{id}", nil)
	require.NoError(t, err)
	assert.Equal(t, KindTemplate, s.Kind())
	assert.True(t, s.MatchOne("https://example.com/books/42"))
	assert.False(t, s.MatchOne("https://example.com/movies/42"))
	assert.False(t, s.MatchOne("https://example.com/books/42/chapters/1"))
}

func TestCompile_TemplateFragmentOperator(t *testing.T) {
	s, err := Compile("https://example.com/a{#frag}", nil)
	require.NoError(t, err)
	assert.True(t, s.MatchOne("https://example.com/a#section1"))
	assert.False(t, s.MatchOne("https://example.com/a"))
}

func TestCompile_TemplateExplodedPathSegments(t *testing.T) {
	s, err := Compile("https://example.com{/segments*}", nil)
	require.NoError(t, err)
	assert.True(t, s.MatchOne("https://example.com/a"))
	assert.True(t, s.MatchOne("https://example.com/a/b/c"))
	assert.False(t, s.MatchOne("https://example.com"))
}

func TestCompile_TemplateQueryOperator(t *testing.T) {
	s, err := Compile("https://example.com/search{?q}", nil)
	require.NoError(t, err)
	assert.True(t, s.MatchOne("https://example.com/search?q=golang"))
	assert.False(t, s.MatchOne("https://example.com/search"))
}

func TestCompile_TemplateLabelOperator(t *testing.T) {
	s, err := Compile("https://example.com/file{.ext}", nil)
	require.NoError(t, err)
	assert.True(t, s.MatchOne("https://example.com/file.json"))
	assert.False(t, s.MatchOne("https://example.com/file"))
}

func TestCompile_TemplateSubstringTruncation(t *testing.T) {
	s, err := Compile("https://example.com/{id:3}", nil)
	require.NoError(t, err)
	assert.True(t, s.MatchOne("https://example.com/abc"))
	assert.False(t, s.MatchOne("https://example.com/abcd"))
}

func TestMatch_AnyCandidateInSet(t *testing.T) {
	s, err := Compile("https://example.com/a", nil)
	require.NoError(t, err)
	assert.True(t, s.Match([]string{"https://example.com/other", "https://example.com/a"}))
}

func TestTemplateCache_ReturnsEquivalentCompiledSelectorAcrossCalls(t *testing.T) {
	c := NewTemplateCache(8)
	first, err := c.Compile("https://example.com/books/{id}", nil)
	require.NoError(t, err)
	second, err := c.Compile("https://example.com/books/{id}", nil)
	require.NoError(t, err)

	assert.True(t, first.MatchOne("https://example.com/books/1"))
	assert.True(t, second.MatchOne("https://example.com/books/1"))
}
