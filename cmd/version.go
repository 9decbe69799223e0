package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"rockwatch/internal/camera"
)

// NewVersionCmd はバージョン表示コマンドを作成する
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "バージョンを表示する",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rockwatch %s\n", Version)
			fmt.Fprintf(out, "  Go:       %s\n", runtime.Version())
			fmt.Fprintf(out, "  Arch:     %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "  Backends: %v\n", camera.Backends())
		},
	}
}
