package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"kenbikyo/internal/amcam"
	"kenbikyo/internal/config"
	"kenbikyo/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		sim  = flag.Bool("sim", false, "実SDKの代わりにシミュレートカメラを使用")
		help = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Kenbikyo - 顕微鏡カメラサーバー")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  kenbikyo [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// SDKを選択する
	// -sim 指定時はシリアルSIM001の自走カメラを使い、実機なしで動作確認できる
	var sdk amcam.SDK
	if *sim {
		dev := amcam.NewSimDevice("SIM001")
		dev.FrameInterval = 33 * time.Millisecond
		sdk = amcam.NewSimSDK(dev)
		if !cfg.Device.IsConfigured() {
			cfg.Device.SerialNumber = "SIM001"
			cfg.Device.Name = "シミュレートカメラ"
			// /get_ping は呼び出しごとに設定ファイルを読み直すため、
			// シミュレート用のシリアルもファイルへ書き出しておく
			if err := config.SaveDevice(config.DeviceConfigPath(), cfg.Device); err != nil {
				log.Printf("デバイス設定の書き出しに失敗しました: %v", err)
			}
		}
		log.Println("シミュレートカメラモードで起動します")
	} else {
		sdk = amcam.Default()
	}

	// サーバーを作成して起動
	srv := server.New(cfg, sdk)

	log.Printf("Kenbikyo サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(context.Background()); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
