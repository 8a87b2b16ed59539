// Package security はアプリケーションのセキュリティ機能を提供する。
//
// RecordSanitizer はレコード本文（JSON）に含まれる文字列値からHTMLタグを除去する。
// bluemondayのStrictPolicyでタグを落とした後、エンティティを元の文字に戻す。
// 保存するのはプレーンテキストであり、HTMLとしてのエスケープは描画側で行う。
package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// ErrNotObject はレコード本文がJSONオブジェクトでない場合のエラー。
var ErrNotObject = errors.New("record payload must be a JSON object")

// RecordSanitizer はレコード本文のサニタイズ機能のインターフェースを定義する。
type RecordSanitizer interface {
	// SanitizeJSON はJSONオブジェクト内の全ての文字列値（ネストした配列・オブジェクトを含む）を
	// サニタイズした新しいJSONを返す。キーと数値・真偽値・nullはそのまま保持する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeJSON(raw json.RawMessage) (json.RawMessage, error)
}

// recordSanitizer はRecordSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type recordSanitizer struct {
	policy *bluemonday.Policy
}

// NewRecordSanitizer はRecordSanitizerの新しいインスタンスを生成する。
func NewRecordSanitizer() *recordSanitizer {
	return &recordSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeJSON はJSONオブジェクト内の文字列値をサニタイズする。
func (s *recordSanitizer) SanitizeJSON(raw json.RawMessage) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}

	// json.Marshalは<>&を\u003c形式に変換するため、エスケープを無効にしたEncoderを使う
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s.walk(obj)); err != nil {
		return nil, fmt.Errorf("failed to encode sanitized payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// maxStripPasses はエンティティで二重にエンコードされたタグを剥がす回数の上限。
const maxStripPasses = 4

// SanitizeString は単一の文字列からHTMLタグを除去し、プレーンテキストを返す。
// "&lt;b&gt;" のようにエンコードされたタグも、復元後に再度除去する。
func (s *recordSanitizer) SanitizeString(v string) string {
	for i := 0; i < maxStripPasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(v))
		if next == v {
			return next
		}
		v = next
	}
	return v
}

func (s *recordSanitizer) walk(v any) any {
	switch t := v.(type) {
	case string:
		return s.SanitizeString(t)
	case map[string]any:
		for k, child := range t {
			t[k] = s.walk(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = s.walk(child)
		}
		return t
	default:
		return v
	}
}
