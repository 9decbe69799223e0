// Package cmd は rockwatch コマンドの実装
package cmd

import (
	"github.com/spf13/cobra"

	"rockwatch/internal/config"
	"rockwatch/internal/logging"
)

// Version はビルド時に -ldflags で上書きされる
var Version = "dev"

// NewRootCmd はルートコマンドを作成する
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rockwatch",
		Short:        "落石・斜面監視コンソールのライブ監視サーバー",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "設定ファイルのパス (デフォルト: ./"+config.DefaultFile+")")
	root.PersistentFlags().BoolP("verbose", "v", false, "デバッグログを出力する")

	root.AddCommand(
		NewServeCmd(),
		NewDevicesCmd(),
		NewVersionCmd(),
	)
	return root
}

// loadConfig は --config と --verbose を反映した設定を読み込み、ロガーを構成する
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Configure(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}
