// Package web はサーバーサイドで描画するHTMLページのテンプレートを提供する。
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"
)

//go:embed templates/*.html
var templatesFS embed.FS

// ページテンプレート名
const (
	PageHome      = "home.html"
	PageService   = "service.html"
	PagePilot     = "pilot.html"
	PageLogin     = "login.html"
	PageMyPage    = "mypage.html"
	PageDiagnosis = "diagnosis.html"
	PageError     = "error.html"
)

var pages = []string{PageHome, PageService, PagePilot, PageLogin, PageMyPage, PageDiagnosis, PageError}

// Page は全ページ共通の描画データ。
type Page struct {
	Title     string
	CSRFToken string
	SignedIn  bool
	// Flash は操作成功時のメッセージ。
	Flash string
	// Error は画面上部に表示するエラーメッセージ。
	Error string
	Data  any
}

// Renderer はレイアウトと各ページを組み合わせたテンプレートを保持する。
type Renderer struct {
	templates map[string]*template.Template
}

var funcs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		return t.Format("15:04")
	},
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("テンプレート %s の解析に失敗: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Render はページを描画する。描画に失敗した場合はレスポンスに何も書き込まずにエラーを返す。
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) error {
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("テンプレート %s が見つかりません", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", page); err != nil {
		return fmt.Errorf("テンプレート %s の描画に失敗: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
