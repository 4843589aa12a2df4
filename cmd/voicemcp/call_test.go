package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	got, err := parseArgs([]string{"message=hello there", "wait_for_response=false", "listen_duration=30", `voice="nova"`})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"message":           "hello there",
		"wait_for_response": false,
		"listen_duration":   30.0,
		"voice":             "nova",
	}, got)

	_, err = parseArgs([]string{"novalue"})
	assert.Error(t, err)
}

func TestRootHasSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "devices", "status", "converse", "call"} {
		assert.Contains(t, names, want)
	}
}
