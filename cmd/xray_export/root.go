package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"xrayexport/config"
	"xrayexport/models"
	"xrayexport/services"
	"xrayexport/utils"
)

const envPrefix = "XRAY_EXPORT"

// reportedError は結果表示ですでにユーザーへ伝えたエラーです
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error { return e.error }

// executeRoot はコマンドを実行し、まだ表示していないエラーを標準エラーに出力します
func executeRoot(cmd *cobra.Command) error {
	err := cmd.Execute()
	if err == nil {
		return nil
	}
	var reported reportedError
	if !errors.As(err, &reported) {
		fmt.Fprintln(cmd.ErrOrStderr(), renderMessage(models.SeverityError, err.Error()))
	}
	return err
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "xray_export",
		Short:         "XrayのテストケースをCSVにエクスポートします",
		Long:          `Xray Cloud からテストケースと手順を取得し、JIRAのリンク情報を付けてCSVに出力します。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			utils.SetDebug(v.GetBool("debug"))
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigFile, "設定ファイルのパス")
	rootCmd.PersistentFlags().Bool("debug", false, "デバッグログを出力する")
	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(newExportCmd(v), newInitCmd(v))
	return rootCmd
}

func newExportCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "テストケースをCSVにエクスポートする",
		Example: `  xray_export export --key PBPM-25818
  xray_export export --input keys.csv
  xray_export export --input keys.csv --merge=false --output-dir ./out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, v)
		},
	}

	cmd.Flags().StringSliceP("key", "k", nil, "エクスポートするテストのキー（単体エクスポート）")
	cmd.Flags().StringP("input", "i", "", "1列目にキーを並べたCSVファイル（一括エクスポート）")
	cmd.Flags().Bool("merge", true, "一括エクスポート時に1つのCSVにまとめる")
	cmd.Flags().StringP("output-dir", "o", "", "出力先フォルダ（デフォルト: ダウンロードフォルダ）")
	_ = v.BindPFlag("merge", cmd.Flags().Lookup("merge"))
	_ = v.BindPFlag("output-dir", cmd.Flags().Lookup("output-dir"))

	return cmd
}

func newInitCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "設定ファイルのテンプレートを生成する",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString("config")
			if _, err := os.Stat(path); err == nil {
				return errors.Errorf("設定ファイルはすでに存在します: %s", path)
			}
			if err := config.WriteTemplate(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderMessage(models.SeverityInfo,
				fmt.Sprintf("テンプレートを生成しました: %s（API情報を入力してください）", path)))
			return nil
		},
	}
}

func runExport(cmd *cobra.Command, v *viper.Viper) error {
	out := cmd.OutOrStdout()

	cfg, err := config.LoadConfig(v.GetString("config"))
	if err != nil {
		if errors.Is(err, config.ErrConfigMissing) || errors.Is(err, config.ErrConfigIncomplete) {
			fmt.Fprintln(out, renderMessage(models.SeverityWarning,
				"config.ini に正しいAPI情報を入力してから再実行してください"))
		}
		return err
	}
	if dir := v.GetString("output-dir"); dir != "" {
		cfg.OutputDir = dir
	}

	req, err := buildRequest(cmd, v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exporter := services.NewDefaultExporter(cfg)
	exporter.OnStateChange = func(runID string, state models.ExportState) {
		utils.LogDebug("[%s] %s", runID, state)
	}

	fmt.Fprintln(out, renderMessage(models.SeverityInfo, "エクスポート中..."))
	task, err := exporter.Start(ctx, req)
	if err != nil {
		return err
	}
	result := task.Wait()

	fmt.Fprintln(out, renderResult(result))
	if result.State == models.StateFailed {
		return reportedError{result.Err}
	}
	return nil
}

// buildRequest はフラグからエクスポート要求を組み立てます。
// --input が指定された場合は一括エクスポート、--key のみの場合は単体エクスポートになります。
func buildRequest(cmd *cobra.Command, v *viper.Viper) (models.ExportRequest, error) {
	keys, err := cmd.Flags().GetStringSlice("key")
	if err != nil {
		return models.ExportRequest{}, err
	}
	input, err := cmd.Flags().GetString("input")
	if err != nil {
		return models.ExportRequest{}, err
	}

	if input == "" {
		return models.ExportRequest{Keys: keys, Merge: false}, nil
	}

	fileKeys, err := services.NewCSVProcessor(nil).ReadKeysCSV(input)
	if err != nil {
		return models.ExportRequest{}, errors.Wrap(err, "キー一覧の読み込みに失敗しました")
	}
	return models.ExportRequest{
		Keys:  append(keys, fileKeys...),
		Merge: v.GetBool("merge"),
	}, nil
}
