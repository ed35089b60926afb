package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelectBasic(t *testing.T) {
	q, err := parseSelect("SELECT name, id FROM Customers")
	require.NoError(t, err)
	assert.Equal(t, "CUSTOMERS", q.table)
	assert.Equal(t, []string{"NAME", "ID"}, q.columns)
}

func TestParseSelectIsCaseInsensitive(t *testing.T) {
	q, err := parseSelect("select a from b")
	require.NoError(t, err)
	assert.Equal(t, "B", q.table)
	assert.Equal(t, []string{"A"}, q.columns)
}

func TestParseSelectStripsBracketsAndQuotes(t *testing.T) {
	q, err := parseSelect(`select [City], "Revenue" from [eFashion]`)
	require.NoError(t, err)
	assert.Equal(t, "EFASHION", q.table)
	assert.Equal(t, []string{"CITY", "REVENUE"}, q.columns)
}

func TestParseSelectTrimsWhitespace(t *testing.T) {
	q, err := parseSelect("SELECT  a ,  b  FROM  t ")
	require.NoError(t, err)
	assert.Equal(t, "T", q.table)
	assert.Equal(t, []string{"A", "B"}, q.columns)
}

func TestParseSelectMissingFromFails(t *testing.T) {
	_, err := parseSelect("SELECT a, b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBadQuery))
}

func TestParseSelectRepeatedFromFails(t *testing.T) {
	_, err := parseSelect("SELECT a FROM b FROM c")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBadQuery))
}
