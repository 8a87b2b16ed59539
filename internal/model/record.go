package model

import (
	"encoding/json"
	"time"
)

// Record は名前付きコレクションに格納される汎用データレコード。
// Dataの内容はコレクションごとに呼び出し側が解釈する。
// OwnerIDは作成したユーザーのIDで、取得と削除は所有者本人に限られる。
type Record struct {
	ID         string
	OwnerID    string
	Collection string
	Data       json.RawMessage
	CreatedAt  time.Time
}
