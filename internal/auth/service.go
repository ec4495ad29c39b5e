// Package auth はOAuth認証フロー、セッション管理を提供する。
// ホスト型認証サービスの境界にあたり、セッションの取得、変更通知の購読、
// OAuthリダイレクトの開始、サインアウト、パスワード更新を扱う。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/inflect/internal/model"
	"github.com/hitoshi/inflect/internal/repository"
)

var (
	// ErrUnknownProvider は未登録のOAuthプロバイダーが指定されたことを表す。
	ErrUnknownProvider = errors.New("unknown oauth provider")
	// ErrInvalidState はOAuthのstateが不正または期限切れであることを表す。
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しないことを表す。
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// Name はプロバイダー識別子（"google" 等）を返す。
	Name() string
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// Stores は認証サービスが使うリポジトリ群。
type Stores struct {
	Users       repository.UserRepository
	Identities  repository.IdentityRepository
	Sessions    repository.SessionRepository
	Credentials repository.CredentialRepository
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）

	// SiteURL はリダイレクト先が許可リストにない場合の戻り先のオリジン。
	SiteURL string
	// AllowedRedirectOrigins はOAuth後の戻り先として許可するオリジン。
	// SiteURL のオリジンは常に許可される。
	AllowedRedirectOrigins []string
}

// IssuedSession は発行したセッションとアクセストークンの組。
type IssuedSession struct {
	Session     *model.Session
	AccessToken string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers map[string]OAuthProvider
	stores    Stores
	signer    *TokenSigner
	notifier  Notifier
	config    ServiceConfig
	allowed   map[string]bool
}

// NewService はServiceを生成する。
func NewService(
	providers []OAuthProvider,
	stores Stores,
	signer *TokenSigner,
	notifier Notifier,
	config ServiceConfig,
) *Service {
	if notifier == nil {
		notifier = NewLocalNotifier()
	}

	byName := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	allowed := make(map[string]bool)
	if o := originOf(config.SiteURL); o != "" {
		allowed[o] = true
	}
	for _, raw := range config.AllowedRedirectOrigins {
		if o := originOf(raw); o != "" {
			allowed[o] = true
		}
	}

	return &Service{
		providers: byName,
		stores:    stores,
		signer:    signer,
		notifier:  notifier,
		config:    config,
		allowed:   allowed,
	}
}

// SignInWithOAuth はOAuthフローを開始し、ブラウザの遷移先を返す。
// redirectTo はログイン完了後の戻り先。許可されていないオリジンの場合は
// SiteURL 上の同じパスに置き換える。
func (s *Service) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (*model.OAuthRedirect, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	target := s.sanitizeRedirect(redirectTo)

	nonce, err := randomHex(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state nonce: %w", err)
	}
	state, err := s.signer.IssueState(provider, target, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to sign state: %w", err)
	}

	slog.InfoContext(ctx, "oauth sign-in started",
		slog.String("provider", provider),
		slog.String("redirect_to", target),
	)

	return &model.OAuthRedirect{URL: p.GetLoginURL(state), State: state}, nil
}

// ResolveState はOAuthのstateを検証し、プロバイダー名と戻り先を返す。
func (s *Service) ResolveState(state string) (provider, redirectTo string, err error) {
	claims, err := s.signer.parseState(state)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return claims.Provider, claims.RedirectTo, nil
}

// CompleteOAuth は認可コードを交換してセッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成する。
// プロフィール行はここでは作成せず、ワーカーが非同期に作成する。
func (s *Service) CompleteOAuth(ctx context.Context, provider, code string) (*IssuedSession, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	userInfo, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.stores.Identities.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string
	if identity != nil {
		userID = identity.UserID
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		now := time.Now()
		newUser := &model.User{
			ID:        uuid.New().String(),
			Email:     userInfo.Email,
			Name:      userInfo.Name,
			AvatarURL: userInfo.AvatarURL,
			CreatedAt: now,
			UpdatedAt: now,
		}
		newIdentity := &model.Identity{
			ID:             uuid.New().String(),
			UserID:         newUser.ID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}

		if err := s.stores.Users.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}

		userID = newUser.ID
		slog.Info("new user created",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	}

	return s.issueSession(ctx, userID, userInfo.Email)
}

// SignInWithPassword はアカウントページで設定したパスワードでログインする。
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*IssuedSession, error) {
	email = strings.TrimSpace(email)
	// 保存時と同じく前後の空白を除いて照合する
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.stores.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	cred, err := s.stores.Credentials.FindByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if cred == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(ctx, user.ID, user.Email)
}

// GetSession はアクセストークンから現在のセッションを取得する。
// トークンが空・不正・失効済みの場合は nil, nil を返す（セッションなし）。
func (s *Service) GetSession(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}

	claims, err := s.signer.ParseAccess(token)
	if err != nil {
		slog.DebugContext(ctx, "access token rejected", slog.String("error", err.Error()))
		return nil, nil
	}

	session, err := s.stores.Sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.UserID != claims.Subject {
		return nil, nil
	}
	if session.Email == "" {
		session.Email = claims.Email
	}
	return session, nil
}

// GetCurrentUser はアクセストークンから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, token string) (*model.User, error) {
	session, err := s.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.stores.Users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}
	return user, nil
}

// SignOut はアクセストークンに対応するセッションを破棄する。
// トークンが不正な場合は何もしない。
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.signer.ParseAccess(token)
	if err != nil {
		return nil
	}

	if err := s.stores.Sessions.DeleteByID(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out", slog.String("user_id", claims.Subject))
	s.publish(ctx, model.EventSignedOut, claims.Subject, claims.SessionID)
	return nil
}

// UpdatePassword はユーザーのパスワードを設定・変更する。
func (s *Service) UpdatePassword(ctx context.Context, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.stores.Credentials.Upsert(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	s.publish(ctx, model.EventUserUpdated, userID, "")
	return nil
}

// OnAuthStateChange はセッション変更通知を購読する。
// 戻り値の関数で購読を解除する。
func (s *Service) OnAuthStateChange(fn Listener) func() {
	return s.notifier.Subscribe(fn)
}

// issueSession はセッションを作成し、アクセストークンを発行する。
func (s *Service) issueSession(ctx context.Context, userID, email string) (*IssuedSession, error) {
	sessionID, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		Email:     email,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.stores.Sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	token, err := s.signer.IssueAccess(session.ID, userID, email, session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	s.publish(ctx, model.EventSignedIn, userID, session.ID)
	return &IssuedSession{Session: session, AccessToken: token}, nil
}

// publish は変更通知を送る。通知の失敗は認証処理自体の失敗にはしない。
func (s *Service) publish(ctx context.Context, event model.SessionEvent, userID, sessionID string) {
	change := model.SessionChange{
		Event:     event,
		UserID:    userID,
		SessionID: sessionID,
		At:        time.Now().UTC(),
	}
	if err := s.notifier.Publish(ctx, change); err != nil {
		slog.Warn("failed to publish session change",
			slog.String("event", string(event)),
			slog.String("error", err.Error()),
		)
	}
}

// sanitizeRedirect は戻り先URLを許可リストで検証する。
func (s *Service) sanitizeRedirect(redirectTo string) string {
	u, err := url.Parse(redirectTo)
	if err == nil && u.IsAbs() && s.allowed[originOf(redirectTo)] {
		return redirectTo
	}

	fallback := strings.TrimRight(s.config.SiteURL, "/")
	if err == nil && u.Path != "" {
		fallback += u.EscapedPath()
	}
	slog.Warn("redirect target not allowed, falling back to site URL",
		slog.String("redirect_to", redirectTo),
		slog.String("fallback", fallback),
	)
	return fallback
}

// originOf はURLのscheme://hostを返す。解析できない場合は空文字列。
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// randomHex は暗号的に安全なランダム値を16進文字列で返す。
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
