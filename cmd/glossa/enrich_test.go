package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glossa-app/glossa/pkg/models"
)

func TestReadTextPrefersArgs(t *testing.T) {
	got, err := readText([]string{"hello", "world"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestReadTextFromStdin(t *testing.T) {
	got, err := readText(nil, strings.NewReader("line one\nline two\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", got)
}

func TestPrintVocabulary(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printVocabulary(&out, []models.VocabularyAnalysis{
		{Word: "entropy", Difficulty: 8, IsTechnicalTerm: true, Definition: "measure of disorder"},
	}))
	assert.Contains(t, out.String(), "entropy")
	assert.Contains(t, out.String(), "measure of disorder")

	out.Reset()
	require.NoError(t, printVocabulary(&out, nil))
	assert.Equal(t, "No words to report.\n", out.String())
}

func TestCommandTree(t *testing.T) {
	g := &globals{}
	enrich := newEnrichCmd(g)
	var names []string
	for _, c := range enrich.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"language", "summarize", "rewrite", "translate", "vocabulary"}, names)

	cache := newCacheCmd(g)
	names = names[:0]
	for _, c := range cache.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"stats", "clear", "maintain"}, names)
}
