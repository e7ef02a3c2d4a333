// Package telegram connects the receipt pipeline to a Telegram bot. Each
// update is handled in its own goroutine so a slow model call never blocks
// the polling loop.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zombor/receipt-ledger/internal/receipt"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

// MaxFileSize is the largest file the Bot API lets bots download.
const MaxFileSize = 20 << 20

const (
	downloadFailedText = "Sorry, I could not download that file. Please send it again."
	tooLargeText       = "That file is too large. Please send a smaller photo (under 20MB)."
	unsupportedText    = "I can only read photos, images and PDF receipts."
)

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler processes one inbound unit. *receipt.Service implements it.
type Handler interface {
	Handle(ctx context.Context, in receipt.Inbound) receipt.Reply
}

// Bot polls Telegram for updates and answers each message.
type Bot struct {
	api     API
	handler Handler
	client  *http.Client
	wg      sync.WaitGroup
}

// New creates a Bot. Files are downloaded with a 60 second timeout.
func New(api API, handler Handler) *Bot {
	return &Bot{
		api:     api,
		handler: handler,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Run polls until ctx is cancelled, then waits for in-flight messages.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	slog.Info("Telegram bot polling for updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				b.handleMessage(ctx, msg)
			}(update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	log := slog.With("chat_id", msg.Chat.ID, "message_id", msg.MessageID)

	// /start, /help and unknown commands all get the usage text
	if msg.IsCommand() {
		log.Info("Command received", "command", msg.Command())
		b.reply(msg, b.handler.Handle(ctx, receipt.Inbound{}).Text)
		return
	}

	fileID, contentType, filename, size := attachment(msg)
	if fileID == "" {
		if msg.Document != nil {
			b.reply(msg, unsupportedText)
			return
		}
		b.typing(msg)
		b.reply(msg, b.handler.Handle(ctx, receipt.Inbound{Text: msg.Text}).Text)
		return
	}

	if size > MaxFileSize {
		b.reply(msg, tooLargeText)
		return
	}

	b.typing(msg)
	data, err := b.download(ctx, fileID)
	if err != nil {
		log.Error("Failed to download file", "file_id", fileID, "error", err)
		b.reply(msg, downloadFailedText)
		return
	}

	image, mimeType, err := scanning.Normalize(data, contentType)
	if err != nil {
		log.Warn("Unsupported attachment", "content_type", contentType, "error", err)
		b.reply(msg, unsupportedText)
		return
	}

	reply := b.handler.Handle(ctx, receipt.Inbound{
		Image:       image,
		ContentType: mimeType,
		Filename:    filename,
		Text:        msg.Caption,
	})
	b.reply(msg, reply.Text)
}

// attachment picks the file to read from msg: the largest photo size, or an
// image or PDF document.
func attachment(msg *tgbotapi.Message) (fileID, contentType, filename string, size int) {
	if len(msg.Photo) > 0 {
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		return best.FileID, "image/jpeg", "photo.jpg", best.FileSize
	}

	if doc := msg.Document; doc != nil {
		mimeType := strings.ToLower(doc.MimeType)
		if strings.HasPrefix(mimeType, "image/") || mimeType == "application/pdf" {
			return doc.FileID, mimeType, doc.FileName, doc.FileSize
		}
	}

	return "", "", "", 0
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("getting file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("file exceeds %d bytes", MaxFileSize)
	}
	return data, nil
}

func (b *Bot) typing(msg *tgbotapi.Message) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("Failed to send chat action", "error", err)
	}
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		slog.Error("Failed to send reply", "chat_id", msg.Chat.ID, "error", err)
	}
}
