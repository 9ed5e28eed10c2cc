package main

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBound(t *testing.T) {
	b, err := parseBound("132.59, 34.39,132.66,34.43")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{132.59, 34.39}, Max: orb.Point{132.66, 34.43}}, b)

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "132.66,34.39,132.59,34.43"} {
		_, err := parseBound(bad)
		assert.Error(t, err, bad)
	}
}

func TestCommandsAreRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"change", "classify", "composite", "scenes"})
}
