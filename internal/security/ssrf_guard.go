// Package security はユーザー入力のURLと自由記述テキストを安全に扱うための機能を提供する。
package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

var (
	// ErrInvalidURL はURLの形式やスキームが不正であることを表す。
	ErrInvalidURL = errors.New("invalid url")
	// ErrBlockedURL は内部ネットワーク等へのアクセスとしてブロックされたことを表す。
	ErrBlockedURL = errors.New("blocked url")
)

// URLGuard はユーザーが入力した外部サイトURLへのアクセスに対するSSRF対策。
// パイロット申込時の入力検証と、ワーカーによるサイト確認の両方で使う。
type URLGuard interface {
	// NewSafeClient は接続先IPをDialerレベルで検証するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はDNS解決を伴わない静的な検証を行う。
	// 形式不正は ErrInvalidURL、内部向けアドレスは ErrBlockedURL をラップして返す。
	ValidateURL(rawURL string) error
}

var (
	allowedSchemes = []string{"http", "https"}
	allowedPorts   = []uint16{80, 443}
)

// blockedNetworks はパッケージ初期化時に1回だけパースする。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",     // RFC 1918
	"172.16.0.0/12",  // RFC 1918
	"192.168.0.0/16", // RFC 1918
	"100.64.0.0/10",  // CGNAT
	"127.0.0.0/8",    // ループバック
	"169.254.0.0/16", // リンクローカル（クラウドメタデータを含む）
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// blockedHostnames は名前解決前に拒否するホスト名。
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

type ssrfGuard struct{}

// NewSSRFGuard はURLGuardを生成する。
func NewSSRFGuard() URLGuard {
	return ssrfGuard{}
}

// NewSafeClient はsafeurlによるHTTPクライアントを生成する。
// 名前解決後のIPを検証するため、DNS再バインディングにも対応する。
func (ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	ports := make([]int, len(allowedPorts))
	for i, p := range allowedPorts {
		ports[i] = int(p)
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(ports...).
		Build()

	return safeurl.Client(config).Client
}

func (ssrfGuard) ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !isAllowedScheme(parsed.Scheme) {
		return fmt.Errorf("%w: scheme %q is not allowed", ErrInvalidURL, parsed.Scheme)
	}

	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidURL)
	}
	if port := parsed.Port(); port != "" && !isAllowedPort(port) {
		return fmt.Errorf("%w: port %s", ErrBlockedURL, port)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: address %s", ErrBlockedURL, ip)
		}
		return nil
	}

	if blockedHostnames[host] || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: host %s", ErrBlockedURL, host)
	}
	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isAllowedPort(port string) bool {
	for _, allowed := range allowedPorts {
		if port == fmt.Sprint(allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
