package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MeKo-Tech/qrharvest/internal/testutil"
)

// resetFlags restores every flag of c and its subcommands to its default.
// Cobra commands are package globals, so parsed values would otherwise leak
// from one test into the next.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	globalConfig = nil
	t.Cleanup(func() {
		resetFlags(rootCmd)
		globalConfig = nil
	})

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return strings.TrimSpace(stdout.String()), stderr.String(), err
}

// qrFrame writes a medium-sized frame showing content to dir/name.
func qrFrame(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	testutil.SaveImage(t, testutil.QRCanvas(t, testutil.MediumSize,
		testutil.Placement{Content: content, X: 100, Y: 100, Size: 240},
	), path)
	return path
}
