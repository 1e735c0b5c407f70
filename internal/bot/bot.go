package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/ecosort-bot/internal/llm"
	"github.com/raine/ecosort-bot/internal/metrics"
	"github.com/raine/ecosort-bot/internal/scan"
	"github.com/raine/ecosort-bot/internal/waste"
	"github.com/rs/zerolog/log"
)

// DefaultClassifyTimeout bounds a single classification.
const DefaultClassifyTimeout = 60 * time.Second

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot is the main Telegram bot handler.
type Bot struct {
	tg              BotAPI
	state           BotState
	classifier      llm.Classifier
	observer        scan.Observer
	allowed         map[int64]bool
	classifyTimeout time.Duration
}

// Options configures optional Bot behavior.
type Options struct {
	// AllowedChatIDs restricts the bot to these chats. Empty allows everyone.
	AllowedChatIDs []int64
	// ClassifyTimeout bounds a single classification. Zero uses the default.
	ClassifyTimeout time.Duration
	// Observer receives each classification outcome.
	Observer scan.Observer
}

// NewBot creates a new Bot instance.
func NewBot(tg BotAPI, classifier llm.Classifier, opts Options) *Bot {
	bot := &Bot{
		tg:              tg,
		classifier:      classifier,
		observer:        opts.Observer,
		classifyTimeout: opts.ClassifyTimeout,
	}
	if bot.classifyTimeout <= 0 {
		bot.classifyTimeout = DefaultClassifyTimeout
	}
	if len(opts.AllowedChatIDs) > 0 {
		bot.allowed = make(map[int64]bool, len(opts.AllowedChatIDs))
		for _, id := range opts.AllowedChatIDs {
			bot.allowed[id] = true
		}
	}
	bot.state = bot.NewBotState()
	return bot
}

// Shutdown stops all session workers.
func (b *Bot) Shutdown() {
	b.state.Shutdown()
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to complete.
// Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	message := update.Message
	if message == nil {
		metrics.TelegramUpdatesTotal.WithLabelValues("ignored").Inc()
		return
	}
	chatID := message.Chat.ID

	// MUST be before getUserSession to prevent memory exhaustion from random chat IDs
	if b.allowed != nil && !b.allowed[chatID] {
		metrics.TelegramUpdatesTotal.WithLabelValues("rejected").Inc()
		log.Debug().Int64("chatId", chatID).Msg("dropping update from chat not on allow list")
		return
	}

	session := b.state.getUserSession(chatID)

	msg := SessionMessage{Ctx: ctx, Message: message, Text: message.Text}
	if len(message.Photo) > 0 || message.Document != nil {
		msg.Type = msgTypePhoto
	} else {
		msg.Type = msgTypeText
	}
	metrics.TelegramUpdatesTotal.WithLabelValues(msg.Type).Inc()
	log.Info().Int64("chatId", chatID).Str("type", msg.Type).Str("text", message.Text).Msg("got message")

	if sync {
		session.SendSync(msg)
	} else {
		session.Send(msg)
	}
}

// HandleSessionMessage implements MessageHandler. It is called by the session
// worker goroutine, so session state needs no locking here.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case msgTypePhoto:
		b.handlePhotoMessage(ctx, session, msg.Message)
	case msgTypeText:
		b.handleTextMessage(session, msg.Text)
	case msgTypeAnalysisDone:
		b.handleAnalysisDone(session, msg.State)
	}
}

// handlePhotoMessage downloads the photo and starts a background
// classification. A photo sent while a result is displayed counts as
// scanning the next item.
func (b *Bot) handlePhotoMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	if session.scanner.State().Status == scan.StatusAnalyzing {
		session.reply(MsgStillAnalyzing)
		return
	}

	fileID, ok := imageFileID(message)
	if !ok {
		session.reply(MsgNotAnImage)
		return
	}

	if err := session.scanner.Reset(); err != nil {
		log.Error().Err(err).Int64("chatId", session.chatID).Msg("failed to reset analysis")
		return
	}

	data, mediaType, err := downloadFileID(ctx, b.tg.GetFileDirectURL, fileID)
	if err != nil {
		log.Warn().Err(err).Int64("chatId", session.chatID).Msg("failed to download photo")
		metrics.CaptureErrorsTotal.WithLabelValues("telegram").Inc()
		st, cerr := session.scanner.CaptureFailed(MsgCaptureFailed)
		if cerr != nil {
			log.Error().Err(cerr).Int64("chatId", session.chatID).Msg("failed to record capture error")
		}
		session.replyText(formatState(st))
		return
	}

	classifyCtx, cancel := context.WithTimeout(ctx, b.classifyTimeout)
	done, err := session.scanner.Start(classifyCtx, waste.EncodeImage(data, mediaType))
	if err != nil {
		cancel()
		if errors.Is(err, scan.ErrBusy) {
			session.reply(MsgStillAnalyzing)
			return
		}
		log.Error().Err(err).Int64("chatId", session.chatID).Msg("failed to start analysis")
		return
	}

	session.reply(MsgAnalyzing)
	typingCtx, stopTyping := context.WithCancel(ctx)
	session.stopTyping = stopTyping
	go session.startTypingLoop(typingCtx)

	go func() {
		st := <-done
		cancel()
		session.Send(SessionMessage{Type: msgTypeAnalysisDone, Ctx: ctx, State: &st})
	}()
}

// imageFileID picks the file to classify: the largest photo size, or a
// document whose MIME type is an image.
func imageFileID(message *tgbotapi.Message) (string, bool) {
	if n := len(message.Photo); n > 0 {
		// Telegram orders sizes from smallest to largest
		return message.Photo[n-1].FileID, true
	}
	if doc := message.Document; doc != nil && strings.HasPrefix(doc.MimeType, "image/") {
		return doc.FileID, true
	}
	return "", false
}

func (b *Bot) handleAnalysisDone(session *UserSession, st *scan.State) {
	if session.stopTyping != nil {
		session.stopTyping()
		session.stopTyping = nil
	}
	if st == nil {
		return
	}
	session.replyText(formatState(*st))
}

func (b *Bot) handleTextMessage(session *UserSession, text string) {
	if !strings.HasPrefix(text, "/") {
		session.reply(MsgUnknownInput)
		return
	}

	command, _ := parseCommand(text)
	switch command {
	case "/start":
		session.reply(MsgStart)
	case "/help":
		session.reply(MsgHelp)
	case "/next":
		if err := session.scanner.Reset(); err != nil {
			session.reply(MsgStillAnalyzing)
			return
		}
		session.reply(MsgNextReady)
	case "/status":
		session.replyText(formatState(session.scanner.State()))
	default:
		session.reply(MsgUnknownInput)
	}
}
