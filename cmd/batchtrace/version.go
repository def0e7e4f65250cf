package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=..." at release time.
var (
	version = "dev"
	commit  = ""
	date    = ""
)

var flagVersionJSON bool

func init() {
	versionCmd.Flags().BoolVar(&flagVersionJSON, "json", false, "Print as JSON")
}

type buildInfo struct {
	Version  string `json:"version"`
	Commit   string `json:"commit,omitempty"`
	Date     string `json:"date,omitempty"`
	Go       string `json:"go"`
	Ethereum string `json:"go_ethereum,omitempty"`
}

// currentBuild fills commit and date from the embedded VCS stamp when they
// were not set by the linker.
func currentBuild() buildInfo {
	b := buildInfo{Version: version, Commit: commit, Date: date, Go: runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	for _, dep := range info.Deps {
		if dep.Path == "github.com/ethereum/go-ethereum" {
			b.Ethereum = dep.Version
		}
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && b.Commit == "":
			b.Commit = s.Value
		case s.Key == "vcs.time" && b.Date == "":
			b.Date = s.Value
		}
	}
	return b
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		b := currentBuild()
		out := cmd.OutOrStdout()
		if flagVersionJSON {
			return json.NewEncoder(out).Encode(b)
		}
		fmt.Fprintf(out, "batchtrace %s (%s", b.Version, b.Go)
		if b.Ethereum != "" {
			fmt.Fprintf(out, ", go-ethereum %s", b.Ethereum)
		}
		fmt.Fprint(out, ")")
		if b.Commit != "" {
			fmt.Fprintf(out, " commit %s", b.Commit)
		}
		if b.Date != "" {
			fmt.Fprintf(out, " built %s", b.Date)
		}
		fmt.Fprintln(out)
		return nil
	},
}
