package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCmd(t *testing.T) {
	assert.Equal(t, "concierge", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCmd_Subcommands(t *testing.T) {
	want := []string{"serve", "register", "ask", "history", "reconcile", "warmup", "version"}

	registered := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range want {
		assert.True(t, registered[name], "subcommand %q not registered", name)
	}
}
