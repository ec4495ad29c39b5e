package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/route"
)

// ErrOriginUnknown はリクエストのオリジンを特定できないことを表す。
var ErrOriginUnknown = errors.New("request origin could not be determined")

// OAuthStarter は認証サービスのOAuth開始操作。
type OAuthStarter interface {
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (*model.OAuthRedirect, error)
}

// LoginInitiator はOAuthログインを開始する。
// ローカルのセッションは変更せず、成功はコールバック側で観測する。
type LoginInitiator struct {
	auth OAuthStarter
}

// NewLoginInitiator はLoginInitiatorを生成する。
func NewLoginInitiator(auth OAuthStarter) *LoginInitiator {
	return &LoginInitiator{auth: auth}
}

// Start は origin から算出したコールバック先を渡して認証サービスにリダイレクトを依頼する。
// オリジンが不正な場合は認証サービスを呼ばずに ErrOriginUnknown を返す。
func (l *LoginInitiator) Start(ctx context.Context, provider, origin string) (*model.OAuthRedirect, error) {
	target, err := CallbackTarget(origin)
	if err != nil {
		return nil, err
	}

	redirect, err := l.auth.SignInWithOAuth(ctx, provider, target)
	if err != nil {
		return nil, fmt.Errorf("failed to start oauth sign-in: %w", err)
	}
	return redirect, nil
}

// CallbackTarget は <origin>/auth/callback を返す。
func CallbackTarget(origin string) (string, error) {
	if origin == "" {
		return "", ErrOriginUnknown
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrOriginUnknown, origin)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("%w: %q is not an origin", ErrOriginUnknown, origin)
	}
	return u.Scheme + "://" + u.Host + route.AuthCallback, nil
}

// RequestOrigin はリクエストを受けたオリジン（scheme://host）を返す。
// trustProxy が true の場合は X-Forwarded-Proto / X-Forwarded-Host を優先する。
// ホストが特定できない場合は空文字列を返す。
func RequestOrigin(r *http.Request, trustProxy bool) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host

	if trustProxy {
		if proto := firstHeaderValue(r, "X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
		if fwdHost := firstHeaderValue(r, "X-Forwarded-Host"); fwdHost != "" {
			host = fwdHost
		}
	}

	if host == "" {
		return ""
	}
	return scheme + "://" + host
}

func firstHeaderValue(r *http.Request, name string) string {
	v := r.Header.Get(name)
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}
