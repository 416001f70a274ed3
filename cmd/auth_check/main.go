package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"xrayexport/api"
	"xrayexport/config"
	"xrayexport/utils"
)

func main() {
	// コマンドラインフラグの定義
	configPath := flag.String("config", config.DefaultConfigFile, "設定ファイルのパス")
	help := flag.Bool("help", false, "ヘルプを表示する")

	// フラグのパース
	flag.Parse()

	// ヘルプフラグが指定された場合はヘルプを表示
	if *help {
		printHelp()
		return
	}

	utils.LogInfo("Xray / JIRA 認証確認ツール")

	// 設定の読み込み
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()
	failed := false

	// Xray認証チェック
	utils.LogInfo("Xray APIの認証を確認しています...")
	if _, err := api.NewXrayClient(cfg).Authenticate(ctx); err != nil {
		utils.LogError("Xray認証エラー: %v", err)
		failed = true
	} else {
		utils.LogInfo("Xray認証成功！ 接続先: %s", cfg.XrayBaseURL)
	}

	// JIRA認証チェック
	utils.LogInfo("JIRA APIの認証を確認しています...")
	if err := api.NewJiraClient(cfg).CheckAuth(ctx); err != nil {
		utils.LogError("JIRA認証エラー: %v", err)
		failed = true
	} else {
		utils.LogInfo("JIRA認証成功！ 接続先: %s", cfg.JiraBaseURL())
	}

	if failed {
		utils.LogError("認証情報を確認してください。")
		os.Exit(1)
	}
	utils.LogInfo("APIの認証情報は正常です。")
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
Xray / JIRA 認証確認ツール

使用方法:
  %s [オプション]

オプション:
  -config ファイル    設定ファイルのパス (デフォルト: config.ini)
  -help               このヘルプを表示する

設定ファイル:
  [XRAY] CLIENT_ID, CLIENT_SECRET
  [JIRA] DOMAIN, EMAIL, API_TOKEN

説明:
  このツールはXray APIとJIRA APIの認証情報が正しく設定されているかを確認します。
  認証が成功すれば、エクスポートも正常に動作する可能性が高いです。
`, os.Args[0])
}
