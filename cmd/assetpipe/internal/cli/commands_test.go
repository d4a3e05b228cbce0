package cli

import (
	"testing"
)

type flagCase struct {
	name         string
	flagName     string
	wantDefault  string
	wantShortcut string
}

func checkFlags(t *testing.T, cmdName string, tests []flagCase) {
	t.Helper()
	cmd := findCommand(RootCmd(), cmdName)
	if cmd == nil {
		t.Fatalf("%s command not found", cmdName)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := cmd.Flags().Lookup(tt.flagName)
			if flag == nil {
				t.Fatalf("flag %q not found on %s command", tt.flagName, cmdName)
			}
			if flag.DefValue != tt.wantDefault {
				t.Errorf("flag %q default = %q, want %q", tt.flagName, flag.DefValue, tt.wantDefault)
			}
			if flag.Shorthand != tt.wantShortcut {
				t.Errorf("flag %q shorthand = %q, want %q", tt.flagName, flag.Shorthand, tt.wantShortcut)
			}
		})
	}
}

func TestImportCmd_FlagDefaults(t *testing.T) {
	checkFlags(t, "import", []flagCase{
		{"force flag defaults to false", "force", "false", ""},
		{"dry-run flag defaults to false", "dry-run", "false", ""},
		{"no-progress flag defaults to false", "no-progress", "false", ""},
		{"prune flag defaults to true", "prune", "true", ""},
	})
}

func TestStatusCmd_FlagDefaults(t *testing.T) {
	checkFlags(t, "status", []flagCase{
		{"verbose flag defaults to false", "verbose", "false", ""},
		{"json flag defaults to false", "json", "false", ""},
	})
}

func TestWatchCmd_FlagDefaults(t *testing.T) {
	checkFlags(t, "watch", []flagCase{
		{"debounce defaults to 500ms", "debounce", "500", ""},
		{"metrics-addr defaults to disabled", "metrics-addr", "", ""},
		{"verbose flag defaults to false", "verbose", "false", ""},
		{"json flag defaults to false", "json", "false", ""},
		{"no-color flag defaults to false", "no-color", "false", ""},
	})
}

func TestPackCmd_FlagDefaults(t *testing.T) {
	checkFlags(t, "pack", []flagCase{
		{"dir defaults to the output directory", "dir", "", ""},
		{"verbose flag defaults to false", "verbose", "false", ""},
	})
}

func TestResolveCmd_FlagDefaults(t *testing.T) {
	checkFlags(t, "resolve", []flagCase{
		{"stream flag defaults to false", "stream", "false", ""},
		{"timestamp flag defaults to false", "timestamp", "false", ""},
		{"owner flag defaults to false", "owner", "false", ""},
	})
}

func TestLsCmd_FlagDefaults(t *testing.T) {
	checkFlags(t, "ls", []flagCase{
		{"prefix defaults to empty", "prefix", "", ""},
		{"suffix defaults to empty", "suffix", "", ""},
		{"strip flag defaults to false", "strip", "false", ""},
		{"long flag has -l", "long", "false", "l"},
	})
}

func TestInitCmd_FlagDefaults(t *testing.T) {
	checkFlags(t, "init", []flagCase{
		{"source defaults to detection", "source", "", ""},
		{"output defaults to imported", "output", "imported", ""},
		{"check flag defaults to false", "check", "false", ""},
		{"dry-run flag defaults to false", "dry-run", "false", ""},
		{"force flag defaults to false", "force", "false", ""},
	})
}
