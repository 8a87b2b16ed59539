package security

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// NewOutboundClient はIdP（トークン・ユーザー情報エンドポイント）への通信用HTTPクライアントを生成する。
// safeurlによりhttpsの443番ポート以外、プライベートIP、ループバック、リンクローカル、
// メタデータIPへの接続はDialerレベルで拒否される（DNS再バインディングも含む）。
// エンドポイントURLは設定で上書きできるため、誤設定で内部ネットワークへ送信しないよう制限する。
func NewOutboundClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}
