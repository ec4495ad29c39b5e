package diagnosis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/inflect/internal/model"
)

// Role はメッセージの発言者。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Greeting は会話の最初に表示するアシスタントのメッセージ。
const Greeting = "こんにちは。会社・市場・製品・チーム・財務・チャネルの情報を入力するか、ファイルをアップロードすると、米国GTMの観点から診断レポートを作成します。"

// Message は会話中の1メッセージ。
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment はアップロード済みの添付ファイル。
type Attachment struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Key         string `json:"-"`
}

// Snapshot は会話状態のコピー。
type Snapshot struct {
	Messages    []Message    `json:"messages"`
	Attachments []Attachment `json:"attachments"`
	Busy        bool         `json:"busy"`
}

// Recorder は分析の所要時間をメトリクスに記録する。
type Recorder interface {
	RecordDiagnosis(duration time.Duration, ok bool)
}

type conversation struct {
	messages    []Message
	attachments []Attachment
	busy        bool
}

// Service はユーザーごとの診断チャットの状態を管理する。
// 1ユーザーにつき同時に処理する分析は1件まで。
type Service struct {
	analyzer Analyzer
	store    AttachmentStore
	recorder Recorder
	maxBytes int64

	mu    sync.Mutex
	convs map[string]*conversation
}

// NewService はServiceの新しいインスタンスを生成する。
// recorder は nil でもよい。
func NewService(analyzer Analyzer, store AttachmentStore, recorder Recorder, maxBytes int64) *Service {
	return &Service{
		analyzer: analyzer,
		store:    store,
		recorder: recorder,
		maxBytes: maxBytes,
		convs:    make(map[string]*conversation),
	}
}

// conversationLocked はユーザーの会話を返す。無ければ挨拶メッセージ付きで作成する。
// s.mu を保持した状態で呼ぶこと。
func (s *Service) conversationLocked(userID string) *conversation {
	c, ok := s.convs[userID]
	if !ok {
		c = &conversation{
			messages: []Message{{Role: RoleAssistant, Content: Greeting, CreatedAt: time.Now()}},
		}
		s.convs[userID] = c
	}
	return c
}

// Snapshot はユーザーの会話状態を返す。
func (s *Service) Snapshot(userID string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conversationLocked(userID)
	return Snapshot{
		Messages:    append([]Message(nil), c.messages...),
		Attachments: append([]Attachment{}, c.attachments...),
		Busy:        c.busy,
	}
}

// Send はユーザーのメッセージを追加し、分析結果をアシスタントのメッセージとして追加する。
// 空のメッセージや、前の分析の処理中の送信は拒否する。
func (s *Service) Send(ctx context.Context, userID, text string) (*Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, model.NewEmptyMessageError()
	}

	s.mu.Lock()
	c := s.conversationLocked(userID)
	if c.busy {
		s.mu.Unlock()
		return nil, model.NewDiagnosisBusyError()
	}
	c.messages = append(c.messages, Message{Role: RoleUser, Content: trimmed, CreatedAt: time.Now()})
	c.busy = true
	req := Request{Text: trimmed, Attachments: append([]Attachment(nil), c.attachments...)}
	s.mu.Unlock()

	start := time.Now()
	answer, err := s.analyzer.Analyze(ctx, req)
	if s.recorder != nil {
		s.recorder.RecordDiagnosis(time.Since(start), err == nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c.busy = false
	if err != nil {
		return nil, fmt.Errorf("診断の実行に失敗しました: %w", err)
	}

	reply := Message{Role: RoleAssistant, Content: answer, CreatedAt: time.Now()}
	c.messages = append(c.messages, reply)
	return &reply, nil
}

// AddAttachment は添付ファイルを保存して一覧に追加する。
// 上限サイズを超える場合は保存せずにエラーを返す。
func (s *Service) AddAttachment(ctx context.Context, userID, name, contentType string, r io.Reader) (*Attachment, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("添付ファイルの読み込みに失敗しました: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, model.NewAttachmentTooLargeError(s.maxBytes)
	}

	att := Attachment{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		Key:         StorageKey(userID),
	}
	if err := s.store.Put(ctx, att.Key, data, contentType); err != nil {
		return nil, fmt.Errorf("添付ファイルの保存に失敗しました: %w", err)
	}

	s.mu.Lock()
	c := s.conversationLocked(userID)
	c.attachments = append(c.attachments, att)
	s.mu.Unlock()

	slog.InfoContext(ctx, "diagnosis attachment added",
		slog.String("user_id", userID),
		slog.String("name", name),
		slog.Int64("size", att.Size),
	)
	return &att, nil
}

// RemoveAttachment は指定位置の添付ファイルを削除する。
func (s *Service) RemoveAttachment(ctx context.Context, userID string, index int) error {
	s.mu.Lock()
	c := s.conversationLocked(userID)
	if index < 0 || index >= len(c.attachments) {
		s.mu.Unlock()
		return model.NewAttachmentNotFoundError(index)
	}
	removed := c.attachments[index]
	c.attachments = append(c.attachments[:index:index], c.attachments[index+1:]...)
	s.mu.Unlock()

	s.deleteObjects(ctx, userID, []Attachment{removed})
	return nil
}

// ClearAttachments は全ての添付ファイルを削除する。
func (s *Service) ClearAttachments(ctx context.Context, userID string) {
	s.mu.Lock()
	c := s.conversationLocked(userID)
	removed := c.attachments
	c.attachments = nil
	s.mu.Unlock()

	s.deleteObjects(ctx, userID, removed)
}

// deleteObjects は保存先からオブジェクトを削除する。
// 一覧からは既に外しているため、削除の失敗はログのみとする。
func (s *Service) deleteObjects(ctx context.Context, userID string, attachments []Attachment) {
	for _, att := range attachments {
		if err := s.store.Delete(ctx, att.Key); err != nil {
			slog.WarnContext(ctx, "failed to delete diagnosis attachment",
				slog.String("user_id", userID),
				slog.String("key", att.Key),
				slog.String("error", err.Error()),
			)
		}
	}
}
