package main

import (
	"testing"
)

// TestMain_CreateRootCommand validates that the root command is properly
// configured with all expected flags and subcommands.
func TestMain_CreateRootCommand(t *testing.T) {
	root := createRootCommand()

	if root == nil {
		t.Fatal("createRootCommand returned nil")
	}

	if root.Use != "release-composer" {
		t.Errorf("expected Use to be 'release-composer', got %q", root.Use)
	}
	if root.Short == "" {
		t.Error("Short description should not be empty")
	}
	if root.Long == "" {
		t.Error("Long description should not be empty")
	}

	for _, name := range []string{"config", "log-level"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected persistent flag --%s to be registered", name)
		}
	}

	expectedCommands := map[string]bool{
		"release":            false,
		"matrix":             false,
		"validate":           false,
		"verify":             false,
		"version":            false,
		"config":             false,
		"install-completion": false,
	}

	for _, cmd := range root.Commands() {
		if _, exists := expectedCommands[cmd.Name()]; exists {
			expectedCommands[cmd.Name()] = true
		}
	}
	for cmdName, found := range expectedCommands {
		if !found {
			t.Errorf("expected subcommand %q to be registered", cmdName)
		}
	}
}
