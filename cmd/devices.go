package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rockwatch/internal/camera"
)

// NewDevicesCmd は利用可能なカメラデバイスを一覧表示するコマンドを作成する
func NewDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "利用可能なカメラデバイスを一覧表示する",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			devices, err := camera.NewLinuxDiscovery().Scan(ctx)
			if err != nil {
				return fmt.Errorf("デバイスのスキャンに失敗: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				data, err := json.MarshalIndent(devices, "", "  ")
				if err != nil {
					return fmt.Errorf("JSONへの変換に失敗: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			if len(devices) == 0 {
				fmt.Fprintln(out, "カメラデバイスが見つかりません")
				return nil
			}
			for _, d := range devices {
				fmt.Fprintf(out, "%-14s %-28s %s\n", d.Device, d.Name, strings.Join(d.Formats, ","))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "JSON形式で出力する")
	return cmd
}
