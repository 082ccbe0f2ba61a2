package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は関数エンドポイントを公開するHTTPサーバーとして起動することを示す。
	CommandServe Command = "serve"
	// CommandFollowup は放棄カートのフォローアップジョブを1回実行して終了することを示す。
	CommandFollowup Command = "followup"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandServe, CommandFollowup, CommandMigrate, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}
