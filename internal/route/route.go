// Package route はアプリケーションの名前付きルートとリダイレクト先URLの組み立てを提供する。
package route

import "net/url"

// 名前付きルート。
const (
	Home         = "/"
	Service      = "/service"
	Pilot        = "/pilot"
	Login        = "/login"
	MyPage       = "/mypage"
	AuthCallback = "/auth/callback"
	AIDiagnosis  = "/ai-diagnosis"
)

// ログインページに渡すエラーコード。
const (
	// ErrorOAuth はOAuthフロー失敗を表す汎用のエラーコード。
	ErrorOAuth = "oauth"
	// ErrorOriginUnknown はログイン開始時にオリジンを特定できなかったことを表す。
	ErrorOriginUnknown = "origin_unknown"
	// ErrorInvalidCredentials はパスワードログインの認証失敗を表す。
	ErrorInvalidCredentials = "invalid_credentials"
)

// LoginWithError はエラー情報付きのログインページURLを返す。
// description が空の場合は error_description を付与しない。
func LoginWithError(code, description string) string {
	q := "error=" + url.QueryEscape(code)
	if description != "" {
		q += "&error_description=" + url.QueryEscape(description)
	}
	return Login + "?" + q
}
