package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Command はcinefeedのサブコマンド。
type Command string

const (
	CommandServe       Command = "serve"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck"
	CommandHelp        Command = "help"
)

// commandEntry はサブコマンドの名前・別名・説明。usage の表示順でもある。
type commandEntry struct {
	cmd     Command
	aliases []string
	summary string
}

var commands = []commandEntry{
	{CommandServe, nil, "ローカルAPIサーバーを起動する（既定）"},
	{CommandMigrate, nil, "SQLiteストレージのスキーマを最新にする（fileバックエンドでは何もしない）"},
	{CommandHealthcheck, nil, "起動中のサーバーの /health を確認する（Dockerヘルスチェック用）"},
	{CommandHelp, []string{"-h", "--help"}, "このヘルプを表示する"},
}

// ParseCommand は先頭の引数からサブコマンドを決める。大文字小文字は区別しない。
// 引数が無い場合や知らない名前の場合はserveとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	name := strings.ToLower(strings.TrimSpace(args[0]))
	for _, entry := range commands {
		if name == string(entry.cmd) {
			return entry.cmd
		}
		for _, alias := range entry.aliases {
			if name == alias {
				return entry.cmd
			}
		}
	}
	return CommandServe
}

// WriteUsage はサブコマンドの一覧を書き出す。
func WriteUsage(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "usage: cinefeed [command]")
	fmt.Fprintln(tw)
	for _, entry := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", entry.cmd, entry.summary)
	}
	return tw.Flush()
}
