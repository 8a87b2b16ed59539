package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はHTTPサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモード（期限切れセッションの削除）で起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandDebug はレコードストアに対するデバッグプローブを実行することを示す。
	CommandDebug Command = "debug"
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

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "debug":
		return CommandDebug
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// debugCollection はdebugサブコマンドの対象コレクションを返す。未指定の場合は空文字。
func debugCollection(args []string) string {
	if len(args) < 2 {
		return ""
	}
	return args[1]
}
