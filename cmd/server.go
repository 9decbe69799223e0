package cmd

import (
	"github.com/spf13/cobra"

	"rockwatch/internal/aggregation"
	"rockwatch/internal/bridge"
	"rockwatch/internal/camera"
	"rockwatch/internal/config"
	"rockwatch/internal/dispatch"
	"rockwatch/internal/inference"
	"rockwatch/internal/logging"
	"rockwatch/internal/monitor"
	"rockwatch/internal/server"
	"rockwatch/internal/session"
	"rockwatch/internal/state"
)

// NewServeCmd はサーバー起動コマンドを作成する
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "監視サーバーを起動する",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyServeFlags(cmd, cfg); err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			logging.NewLogger("main").
				WithField("addr", cfg.ServerAddress()).
				WithField("backend", cfg.Camera.Backend).
				Info("rockwatch サーバーを起動します")
			return a.server.Start(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
	flags.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
	flags.String("backend", "", "カメラバックエンド (ffmpeg / x11 / mock)")
	flags.String("device", "", "カメラデバイス (例: /dev/video0)")
	flags.String("inference-url", "", "推論サービスのURL")
	flags.Duration("interval", 0, "フレームを推論に回す間隔")
	return cmd
}

// applyServeFlags はコマンドラインオプションで設定を上書きし、再検証する
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if v, _ := flags.GetString("host"); v != "" {
		cfg.Server.Host = v
	}
	if v, _ := flags.GetInt("port"); v != 0 {
		cfg.Server.Port = v
	}
	if v, _ := flags.GetString("backend"); v != "" {
		cfg.Camera.Backend = v
	}
	if v, _ := flags.GetString("device"); v != "" {
		cfg.Camera.Device = v
	}
	if v, _ := flags.GetString("inference-url"); v != "" {
		cfg.Inference.URL = v
	}
	if v, _ := flags.GetDuration("interval"); v > 0 {
		cfg.Capture.Interval = v
	}
	return cfg.Validate()
}

// app は組み立て済みのコンポーネント一式
type app struct {
	store      *state.Store
	bridge     *bridge.Bridge
	inference  *inference.Client
	dispatcher *dispatch.Dispatcher
	session    *session.Session
	view       *monitor.View
	server     *server.Server
}

// newApp は設定からコンポーネントを組み立てる
func newApp(cfg *config.Config) (*app, error) {
	store := state.NewStore()
	b := bridge.New()
	agg := aggregation.New(store)

	client, err := inference.NewClient(
		inference.WithBaseURL(cfg.Inference.URL),
		inference.WithTimeout(cfg.Inference.Timeout),
		inference.WithVideoTimeout(cfg.Inference.VideoTimeout),
		inference.WithLogger(logging.NewLogger("inference")),
	)
	if err != nil {
		return nil, err
	}

	dp := dispatch.New(client, agg, store, dispatch.WithTimeout(cfg.Inference.Timeout))

	provider, err := camera.NewProvider(camera.Options{
		Backend:  cfg.Camera.Backend,
		Device:   cfg.Camera.Device,
		Settings: cfg.CameraSettings(),
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	sess := session.New(session.Deps{
		Provider:    provider,
		Dispatcher:  dp,
		Aggregation: agg,
		State:       store,
		Bridge:      b,
	}, session.WithInterval(cfg.Capture.Interval), session.WithDevice(cfg.Camera.Device))

	view := monitor.New(b, store)

	srv := server.New(cfg, server.Deps{
		Session:    sess,
		Dispatcher: dp,
		State:      store,
		Bridge:     b,
		Discovery:  camera.NewLinuxDiscovery(),
		Analyzer:   client,
	})

	return &app{
		store:      store,
		bridge:     b,
		inference:  client,
		dispatcher: dp,
		session:    sess,
		view:       view,
		server:     srv,
	}, nil
}

// close はプロセス終了時の後始末を行う
func (a *app) close() {
	a.session.Close()
	a.view.Close()
	a.inference.Close()
}
