package sitecheck

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// maxTitleRunes は保存するタイトルの最大文字数。
const maxTitleRunes = 200

// ExtractTitle はHTMLのhead内にある最初のtitle要素のテキストを返す。
// 連続する空白は1つにまとめる。見つからない場合は空文字を返す。
func ExtractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false
	var sb strings.Builder

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return normalizeTitle(sb.String())

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "title":
				inTitle = true
			case "body":
				return normalizeTitle(sb.String())
			}

		case html.TextToken:
			if inTitle {
				sb.Write(tokenizer.Text())
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if inTitle && string(tn) == "title" {
				return normalizeTitle(sb.String())
			}
		}
	}
}

// normalizeTitle はPostgresのtext列に保存できない不正なUTF-8とNULを取り除き、空白を詰める。
func normalizeTitle(s string) string {
	s = strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
	title := strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxTitleRunes])
}
