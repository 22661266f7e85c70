package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leakctl/leakctl/internal/leakix"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("leakctl v" + leakix.Version)
		fmt.Println("Built with Go", strings.TrimPrefix(runtime.Version(), "go"))
		fmt.Println("https://github.com/leakctl/leakctl")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
