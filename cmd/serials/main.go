// serials は接続中のカメラのシリアル番号を列挙するコマンド
//
// デバイス設定ファイルに記載するシリアル番号を調べるための
// セットアップ用ツール。候補をJSONで標準出力へ書き出す。
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"kenbikyo/internal/amcam"
	"kenbikyo/internal/camera"
)

// candidate はシリアル候補1件の出力形式
type candidate struct {
	Source      string `json:"source"`
	Serial      string `json:"serial"`
	DisplayName string `json:"display_name"`
	Index       int    `json:"index"`
}

func main() {
	var (
		sim  = flag.Bool("sim", false, "実SDKの代わりにシミュレートカメラを使用")
		help = flag.Bool("help", false, "ヘルプを表示")
	)
	flag.Parse()

	if *help {
		fmt.Println("serials - 接続中カメラのシリアル番号を列挙します")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  serials [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	var sdk amcam.SDK
	if *sim {
		sdk = amcam.NewSimSDK(
			amcam.NewSimDevice("SIM001"),
			amcam.NewSimDevice("SIM002"),
		)
	} else {
		sdk = amcam.Default()
	}

	infos, err := sdk.Enum()
	if err != nil {
		log.Fatalf("カメラの列挙に失敗しました: %v", err)
	}

	results := make([]candidate, 0, len(infos))
	for _, info := range infos {
		// シリアル読み取りのための一時オープン。読み終えたら必ず閉じる
		dev, err := sdk.Open(info.Index)
		if err != nil {
			log.Printf("カメラのオープンに失敗しました: index=%d err=%v", info.Index, err)
			continue
		}
		sn, err := dev.SerialNumber()
		_ = dev.Close()
		if err != nil {
			log.Printf("シリアル番号の取得に失敗しました: index=%d err=%v", info.Index, err)
			continue
		}

		results = append(results, candidate{
			Source:      "amcam",
			Serial:      camera.CanonicalSerial(sn),
			DisplayName: info.DisplayName,
			Index:       info.Index,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		log.Fatalf("JSONの出力に失敗しました: %v", err)
	}
}
