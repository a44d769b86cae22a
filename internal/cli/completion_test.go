package cli

import (
	"io"
	"slices"
	"testing"

	"github.com/spf13/cobra"
)

func TestRegisterCompletions(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()

	for _, name := range []string{"run", "options", "requirements", "graph"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Fatalf("Find(%s) error: %v", name, err)
		}
		if cmd.ValidArgsFunction == nil {
			t.Errorf("%s has no recipe completion", name)
			continue
		}
		got, dir := cmd.ValidArgsFunction(cmd, nil, "")
		if dir != cobra.ShellCompDirectiveFilterFileExt || !slices.Equal(got, []string{"toml"}) {
			t.Errorf("%s completion = %v, %v; want [toml] filtered by extension", name, got, dir)
		}
	}

	info, _, err := root.Find([]string{"info"})
	if err != nil {
		t.Fatal(err)
	}
	if info.ValidArgsFunction != nil {
		t.Error("info takes name/version, not a recipe file")
	}
}

func TestCompleteProfiles(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantDir cobra.ShellCompDirective
	}{
		{"sandbox", []string{"../../pkg/recipe/testdata/sandbox.toml"}, []string{"minimal", "full"}, cobra.ShellCompDirectiveNoFileComp},
		{"no profiles", []string{libdatachannel}, nil, cobra.ShellCompDirectiveNoFileComp},
		{"no recipe yet", nil, nil, cobra.ShellCompDirectiveNoFileComp},
		{"missing recipe", []string{"nope.toml"}, nil, cobra.ShellCompDirectiveError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dir := completeProfiles(nil, tt.args, "")
			if !slices.Equal(got, tt.want) || dir != tt.wantDir {
				t.Errorf("completeProfiles(%v) = %v, %v; want %v, %v", tt.args, got, dir, tt.want, tt.wantDir)
			}
		})
	}
}

func TestCompleteFormats(t *testing.T) {
	got, _ := completeFormats(nil, nil, "")
	for _, f := range got {
		if err := validFormat(f); err != nil {
			t.Errorf("completed format %q is not accepted: %v", f, err)
		}
	}
	if len(got) != 3 {
		t.Errorf("completeFormats() = %v, want 3 formats", got)
	}
}
