package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/ecosort-bot/internal/scan"
	"github.com/rs/zerolog/log"
)

// Session message types.
const (
	msgTypePhoto        = "photo"
	msgTypeText         = "text"
	msgTypeAnalysisDone = "analysis_done"
)

// SessionMessage represents a message to be processed by the session worker.
type SessionMessage struct {
	Type string
	Ctx  context.Context
	Done chan struct{} // Closed when processing is complete (for synchronous dispatch)

	Message *tgbotapi.Message
	Text    string

	// Final state of a background classification (analysis_done messages)
	State *scan.State
}

// MessageSender abstracts the ability to send Telegram messages.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// MessageHandler is the interface for processing session messages.
type MessageHandler interface {
	HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage)
}

// UserSession is the per-chat state: one scanner and a worker goroutine that
// processes messages sequentially. Classification runs in the background and
// reports back through the inbox as an analysis_done message, so the worker
// keeps answering while the model call is in flight.
type UserSession struct {
	chatID  int64
	sender  MessageSender
	scanner *scan.Scanner

	inbox   chan SessionMessage
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	handler MessageHandler

	// Cancels the typing indicator of the in-flight classification
	stopTyping context.CancelFunc
}

func newUserSession(chatID int64, sender MessageSender, scanner *scan.Scanner) *UserSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &UserSession{
		chatID:  chatID,
		sender:  sender,
		scanner: scanner,
		inbox:   make(chan SessionMessage, 10), // Buffered to avoid blocking
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ChatID returns the Telegram chat this session belongs to.
func (s *UserSession) ChatID() int64 {
	return s.chatID
}

// State returns the current analysis state of the session.
func (s *UserSession) State() scan.State {
	return s.scanner.State()
}

// sendTypingAction sends a "typing" chat action. The indicator expires after
// ~5 seconds in Telegram.
func (s *UserSession) sendTypingAction() {
	action := tgbotapi.NewChatAction(s.chatID, tgbotapi.ChatTyping)
	// sendChatAction returns a boolean, not a Message
	_, err := s.sender.Request(action)
	if err != nil {
		log.Debug().Err(err).Int64("chatId", s.chatID).Msg("failed to send typing action")
	}
}

// startTypingLoop sends a typing action every 4 seconds until ctx is done.
func (s *UserSession) startTypingLoop(ctx context.Context) {
	s.sendTypingAction()

	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sendTypingAction()
		}
	}
}

func (s *UserSession) replyWithMessage(msg tgbotapi.MessageConfig) tgbotapi.Message {
	msg.ChatID = s.chatID
	sent, err := s.sender.Send(msg)
	if err != nil {
		log.Error().Stack().
			Int64("chatId", s.chatID).
			Err(fmt.Errorf("failed to send reply message: %w", err)).Send()
	} else {
		log.Debug().Int64("chatId", s.chatID).Int("messageId", sent.MessageID).Msg("sent message")
	}
	return sent
}

func (s *UserSession) reply(text string, a ...any) tgbotapi.Message {
	return s.replyText(formatReplyText(text, a...))
}

// replyText sends already formatted Markdown text.
func (s *UserSession) replyText(text string) tgbotapi.Message {
	return s.replyWithMessage(tgbotapi.MessageConfig{
		Text:      text,
		ParseMode: tgbotapi.ModeMarkdown,
	})
}

// --- Worker methods ---

// StartWorker starts the session's message processing worker goroutine.
// Must be called after setting the handler.
func (s *UserSession) StartWorker() {
	s.wg.Add(1)
	go s.runWorker()
}

// SetHandler sets the message handler for this session.
func (s *UserSession) SetHandler(handler MessageHandler) {
	s.handler = handler
}

func (s *UserSession) runWorker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			// Drain any remaining messages and signal completion
			for {
				select {
				case msg := <-s.inbox:
					if msg.Done != nil {
						close(msg.Done)
					}
				default:
					return
				}
			}
		case msg := <-s.inbox:
			s.processMessage(msg)
		}
	}
}

func (s *UserSession) processMessage(msg SessionMessage) {
	defer func() {
		// Keep the worker running
		if r := recover(); r != nil {
			log.Error().
				Int64("chatId", s.chatID).
				Interface("panic", r).
				Msg("recovered from panic in session worker")
		}
		if msg.Done != nil {
			close(msg.Done)
		}
	}()

	if s.handler == nil {
		log.Error().Int64("chatId", s.chatID).Msg("session handler not set")
		return
	}

	s.handler.HandleSessionMessage(msg.Ctx, s, msg)
}

// Send queues a message for processing by the worker. Non-blocking unless
// the inbox is full.
func (s *UserSession) Send(msg SessionMessage) {
	// The worker no longer drains the inbox once stopped
	if s.ctx.Err() != nil {
		if msg.Done != nil {
			close(msg.Done)
		}
		return
	}
	select {
	case s.inbox <- msg:
	case <-s.ctx.Done():
		if msg.Done != nil {
			close(msg.Done)
		}
	}
}

// SendSync queues a message and waits for it to be processed.
func (s *UserSession) SendSync(msg SessionMessage) {
	msg.Done = make(chan struct{})
	s.Send(msg)
	<-msg.Done
}

// Stop stops the worker and waits for it to finish.
func (s *UserSession) Stop() {
	s.cancel()
	s.wg.Wait()
	if s.stopTyping != nil {
		s.stopTyping()
	}
}
