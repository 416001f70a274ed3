package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// DefaultXrayBaseURL はXray Cloud APIのベースURLです
const DefaultXrayBaseURL = "https://xray.cloud.getxray.app/api/v2"

// DefaultConfigFile は設定ファイルのデフォルトパスです
const DefaultConfigFile = "config.ini"

// テンプレートに書き込むプレースホルダー
const placeholderMarker = "YOUR_"

var (
	// ErrConfigMissing は設定ファイルが存在せず、テンプレートを生成したことを示します
	ErrConfigMissing = errors.New("設定ファイルがありません")
	// ErrConfigIncomplete は設定ファイルの値が未入力であることを示します
	ErrConfigIncomplete = errors.New("設定ファイルの値が不足しています")
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Xray API設定
	XrayBaseURL      string
	XrayClientID     string
	XrayClientSecret string

	// JIRA API設定
	JiraDomain   string
	JiraEmail    string
	JiraAPIToken string

	// CSVの出力先フォルダ
	OutputDir string

	// API呼び出しごとのタイムアウト
	AuthTimeout    time.Duration
	GraphQLTimeout time.Duration
	JiraTimeout    time.Duration
}

// Defaults は設定ファイルに依存しない既定値を返します
func Defaults() *Config {
	return &Config{
		XrayBaseURL:    DefaultXrayBaseURL,
		OutputDir:      DefaultOutputDir(),
		AuthTimeout:    10 * time.Second,
		GraphQLTimeout: 20 * time.Second,
		JiraTimeout:    5 * time.Second,
	}
}

// LoadConfig は設定ファイルと環境変数から設定を読み込みます。
// ファイルが存在しない場合はテンプレートを生成して ErrConfigMissing を返します。
func LoadConfig(path string) (*Config, error) {
	// .envファイルを読み込む
	_ = godotenv.Load()

	if path == "" {
		path = DefaultConfigFile
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteTemplate(path); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(ErrConfigMissing, "テンプレートを生成しました: %s", path)
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "設定ファイル読み込みエラー: %s", path)
	}

	cfg := Defaults()
	xray := file.Section("XRAY")
	jira := file.Section("JIRA")

	cfg.XrayClientID = getEnvWithDefault("XRAY_CLIENT_ID", xray.Key("CLIENT_ID").String())
	cfg.XrayClientSecret = getEnvWithDefault("XRAY_CLIENT_SECRET", xray.Key("CLIENT_SECRET").String())
	cfg.XrayBaseURL = strings.TrimRight(
		getEnvWithDefault("XRAY_BASE_URL", xray.Key("BASE_URL").MustString(DefaultXrayBaseURL)), "/")
	cfg.JiraDomain = getEnvWithDefault("JIRA_DOMAIN", jira.Key("DOMAIN").String())
	cfg.JiraEmail = getEnvWithDefault("JIRA_EMAIL", jira.Key("EMAIL").String())
	cfg.JiraAPIToken = getEnvWithDefault("JIRA_API_TOKEN", jira.Key("API_TOKEN").String())
	cfg.OutputDir = getEnvWithDefault("OUTPUT_DIR", cfg.OutputDir)
	cfg.AuthTimeout = getEnvAsSecondsWithDefault("AUTH_TIMEOUT", cfg.AuthTimeout)
	cfg.GraphQLTimeout = getEnvAsSecondsWithDefault("GRAPHQL_TIMEOUT", cfg.GraphQLTimeout)
	cfg.JiraTimeout = getEnvAsSecondsWithDefault("JIRA_TIMEOUT", cfg.JiraTimeout)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate はテンプレートのままの値や未入力の値を検出します
func (c *Config) Validate() error {
	if c.XrayClientID == "" || strings.Contains(c.XrayClientID, placeholderMarker) {
		return errors.Wrap(ErrConfigIncomplete, "XRAY CLIENT_ID")
	}
	if c.XrayClientSecret == "" || strings.Contains(c.XrayClientSecret, placeholderMarker) {
		return errors.Wrap(ErrConfigIncomplete, "XRAY CLIENT_SECRET")
	}
	if c.JiraAPIToken == "" {
		return errors.Wrap(ErrConfigIncomplete, "JIRA API_TOKEN")
	}
	return nil
}

// JiraBaseURL はJIRA REST APIのベースURLを返します。
// ドメインにスキームが含まれていなければ https を補います。
func (c *Config) JiraBaseURL() string {
	domain := strings.TrimRight(c.JiraDomain, "/")
	if strings.Contains(domain, "://") {
		return domain
	}
	return "https://" + domain
}

// WriteTemplate は値を書き込むためのテンプレート設定ファイルを生成します
func WriteTemplate(path string) error {
	file := ini.Empty()

	xray := file.Section("XRAY")
	xray.Key("CLIENT_ID").SetValue("YOUR_XRAY_ID")
	xray.Key("CLIENT_SECRET").SetValue("YOUR_XRAY_SECRET")

	jira := file.Section("JIRA")
	jira.Key("DOMAIN").SetValue("yourname.atlassian.net")
	jira.Key("EMAIL").SetValue("your_email@example.com")
	jira.Key("API_TOKEN").SetValue("your_jira_api_token")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "設定フォルダ作成エラー")
		}
	}
	if err := file.SaveTo(path); err != nil {
		return errors.Wrap(err, "テンプレート書き込みエラー")
	}
	return nil
}

// DefaultOutputDir はユーザーのダウンロードフォルダを返します。
// 存在しない場合はカレントディレクトリを使います。
func DefaultOutputDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		downloads := filepath.Join(home, "Downloads")
		if info, err := os.Stat(downloads); err == nil && info.IsDir() {
			return downloads
		}
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// デフォルト値付きで環境変数を取得
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// デフォルト値付きで環境変数を秒数として取得
func getEnvAsSecondsWithDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}

	return time.Duration(value) * time.Second
}
