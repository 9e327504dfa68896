// launch はDocker Composeファイルを選んでコンテナ群を起動するコマンド
//
// リポジトリ配下のComposeファイルを列挙して対話的に選択し、
// サーバーの起動を待ってからブラウザで開く。
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// composeFile はComposeファイルの必要な部分だけを写し取る
type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

// composeService はサービス定義のポート設定
type composeService struct {
	Image string   `yaml:"image"`
	Ports []string `yaml:"ports"`
}

// pingTimeout はサーバー起動待ちの上限
const pingTimeout = 15 * time.Second

func main() {
	var (
		root = flag.String("root", ".", "Composeファイルを探索するディレクトリ")
		help = flag.Bool("help", false, "ヘルプを表示")
	)
	flag.Parse()

	if *help {
		fmt.Println("launch - Composeファイルを選んでコンテナ群を起動します")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  launch [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if err := run(*root); err != nil {
		log.Fatalf("起動に失敗しました: %v", err)
	}
}

func run(root string) error {
	if err := dockerAvailable(); err != nil {
		return err
	}

	files, err := findComposeFiles(root)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("composeファイルが見つかりません: %s", root)
	}

	chosen, err := chooseFile(files)
	if err != nil {
		return err
	}

	cf, err := loadCompose(chosen)
	if err != nil {
		return err
	}
	if len(cf.Services) == 0 {
		return fmt.Errorf("サービスが定義されていません: %s", chosen)
	}

	names := make([]string, 0, len(cf.Services))
	for name := range cf.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx := context.Background()
	for _, name := range names {
		fmt.Printf("[INFO] %s を起動しています...\n", name)
		cmd := exec.CommandContext(ctx, "docker", "compose",
			"-f", chosen, "up", "-d", "--force-recreate", name)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s の起動に失敗: %w", name, err)
		}

		ports := hostPorts(cf.Services[name])
		if len(ports) == 0 {
			continue
		}

		url := fmt.Sprintf("http://localhost:%d", ports[0])
		if waitPing(url + "/get_ping") {
			fmt.Printf("[OK] %s が応答しています: %s\n", name, url)
		} else {
			fmt.Printf("[WARN] %s がタイムアウトまでに応答しませんでした\n", name)
		}

		if err := openBrowser(url); err != nil {
			log.Printf("ブラウザを開けませんでした: %v", err)
		} else {
			fmt.Printf("[INFO] ブラウザで開きました: %s\n", url)
		}
	}

	fmt.Println()
	fmt.Println("[DONE] コンテナが起動しました")
	return nil
}

// dockerAvailable はdockerデーモンへ到達できるかを確認する
func dockerAvailable() error {
	if err := exec.Command("docker", "info").Run(); err != nil {
		return fmt.Errorf("dockerデーモンに接続できません: %w", err)
	}
	return nil
}

// findComposeFiles はroot配下のComposeファイルを再帰的に集める
func findComposeFiles(root string) ([]string, error) {
	patterns := []string{
		"docker-compose*.yml", "docker-compose*.yaml",
		"compose*.yml", "compose*.yaml",
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, pat := range patterns {
			if ok, _ := filepath.Match(pat, d.Name()); ok {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("composeファイルの探索に失敗: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// chooseFile は候補一覧を表示して1件選択させる
func chooseFile(files []string) (string, error) {
	fmt.Println("起動するComposeファイルを選択してください:")
	for i, f := range files {
		fmt.Printf(" %2d) %s\n", i+1, f)
	}
	fmt.Print("> ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", fmt.Errorf("入力の読み取りに失敗しました")
	}
	idx, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || idx < 1 || idx > len(files) {
		return "", fmt.Errorf("無効な選択です: %q", scanner.Text())
	}
	return files[idx-1], nil
}

// loadCompose はComposeファイルを読み込む
func loadCompose(path string) (*composeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("composeファイルの読み込みに失敗: %w", err)
	}
	var cf composeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("composeファイルの解析に失敗: %w", err)
	}
	return &cf, nil
}

// hostPorts はサービスのポート定義からホスト側ポートを抜き出す
// "8080:8080" や "127.0.0.1:8080:8080" の両形式に対応する
func hostPorts(svc composeService) []int {
	var out []int
	for _, entry := range svc.Ports {
		parts := strings.Split(entry, ":")
		var host string
		switch len(parts) {
		case 1:
			host = parts[0]
		case 2:
			host = parts[0]
		default:
			host = parts[len(parts)-2]
		}
		if p, err := strconv.Atoi(host); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// waitPing はヘルスチェックが200を返すまで待つ
func waitPing(url string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(pingTimeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

// openBrowser はデフォルトブラウザでURLを開く
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
