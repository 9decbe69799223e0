package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	deviceNumberPattern = regexp.MustCompile(`video(\d+)$`)
	v4l2DevicePattern   = regexp.MustCompile(`^/dev/video\d+$`)
	formatLinePattern   = regexp.MustCompile(`\[\d+\]:\s*'(\w+)'`)
)

// commandRunner は外部コマンドを実行して標準出力を返す
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// LinuxDiscovery はv4l2-ctlを使ってカメラデバイスを検出する
type LinuxDiscovery struct {
	glob    func(pattern string) ([]string, error)
	run     commandRunner
	timeout time.Duration
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() *LinuxDiscovery {
	return &LinuxDiscovery{
		glob:    filepath.Glob,
		run:     execRunner,
		timeout: 5 * time.Second,
	}
}

// ScanDevices はカラー映像を出せるデバイスを番号順に返す
// 同じカメラが複数のノードを持つ場合は最も小さい番号だけを残す
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := d.glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []string
	seen := make(map[string]bool)
	for _, device := range matches {
		if err := ctx.Err(); err != nil {
			return devices, err
		}
		if !v4l2DevicePattern.MatchString(device) {
			continue
		}

		formats, err := d.listFormats(ctx, device)
		if err != nil || !hasColorFormat(formats) {
			continue
		}

		name := d.cardName(ctx, device)
		if name != "" {
			if seen[name] {
				continue
			}
			seen[name] = true
		}
		devices = append(devices, device)
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスが読み取り可能なV4L2デバイスかチェックする
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	if !v4l2DevicePattern.MatchString(device) {
		return false
	}
	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// GetDeviceInfo はデバイスの詳細情報を取得する
func (d *LinuxDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !v4l2DevicePattern.MatchString(device) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.run(ctx, "v4l2-ctl", "--device", device, "--info")
	if err != nil {
		return nil, fmt.Errorf("デバイス情報の取得に失敗 (%s): %w", device, err)
	}
	fields := parseInfoFields(string(out))

	name := fields["Card type"]
	if name == "" {
		name = fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
	}

	formats, _ := d.listFormats(ctx, device)

	return &DeviceInfo{
		Device:  device,
		Name:    name,
		Driver:  fields["Driver name"],
		Formats: formats,
	}, nil
}

// Scan は検出したデバイスの情報をまとめて返す
func (d *LinuxDiscovery) Scan(ctx context.Context) ([]DeviceInfo, error) {
	return scanWith(ctx, d)
}

func (d *LinuxDiscovery) listFormats(ctx context.Context, device string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.run(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext")
	if err != nil {
		return nil, err
	}
	return parseFormats(string(out)), nil
}

func (d *LinuxDiscovery) cardName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.run(ctx, "v4l2-ctl", "--device", device, "--info")
	if err != nil {
		return ""
	}
	return parseInfoFields(string(out))["Card type"]
}

// parseInfoFields は "key : value" 形式の行を読み取る
func parseInfoFields(output string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, exists := fields[key]; exists {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

// parseFormats は --list-formats-ext の出力からピクセルフォーマットを取り出す
func parseFormats(output string) []string {
	var formats []string
	for _, m := range formatLinePattern.FindAllStringSubmatch(output, -1) {
		formats = append(formats, m[1])
	}
	return formats
}

// hasColorFormat はグレースケール専用のノードを除外する
func hasColorFormat(formats []string) bool {
	for _, f := range formats {
		if f == "YUYV" || f == "MJPG" {
			return true
		}
	}
	return false
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	m := deviceNumberPattern.FindStringSubmatch(device)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func scanWith(ctx context.Context, d Discovery) ([]DeviceInfo, error) {
	devices, err := d.ScanDevices(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for _, device := range devices {
		info, err := d.GetDeviceInfo(ctx, device)
		if err != nil {
			infos = append(infos, DeviceInfo{Device: device, Name: device})
			continue
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	devices     []string
	deviceInfos map[string]*DeviceInfo
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices []string) *MockDiscovery {
	m := &MockDiscovery{deviceInfos: make(map[string]*DeviceInfo)}
	for _, device := range devices {
		m.AddDevice(device)
	}
	return m
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]string, error) {
	return append([]string(nil), m.devices...), nil
}

// IsDeviceAvailable はモックデバイスが登録済みかチェックする
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	_, ok := m.deviceInfos[device]
	return ok
}

// GetDeviceInfo はモックデバイス情報を取得する
func (m *MockDiscovery) GetDeviceInfo(_ context.Context, device string) (*DeviceInfo, error) {
	info, ok := m.deviceInfos[device]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	}
	result := *info
	result.Formats = append([]string(nil), info.Formats...)
	return &result, nil
}

// Scan は登録済みデバイスの情報を返す
func (m *MockDiscovery) Scan(ctx context.Context) ([]DeviceInfo, error) {
	return scanWith(ctx, m)
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device string) {
	if _, ok := m.deviceInfos[device]; ok {
		return
	}
	m.devices = append(m.devices, device)
	m.deviceInfos[device] = &DeviceInfo{
		Device:  device,
		Name:    fmt.Sprintf("テストカメラ %d", len(m.devices)),
		Driver:  "mock",
		Formats: []string{"MJPG"},
	}
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(device string) {
	for i, d := range m.devices {
		if d == device {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	delete(m.deviceInfos, device)
}
