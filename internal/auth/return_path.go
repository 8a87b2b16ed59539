package auth

import "strings"

// SanitizeReturnPath はサインイン後の戻り先として安全なサイト内パスだけを通す。
// "/" で始まらないもの、"//" や "/\" で始まるもの（プロトコル相対URL）、
// 制御文字を含むものはfallbackに置き換える。
func SanitizeReturnPath(p, fallback string) string {
	if p == "" || p[0] != '/' {
		return fallback
	}
	if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
		return fallback
	}
	if strings.ContainsAny(p, "\r\n\t\x00") {
		return fallback
	}
	return p
}
