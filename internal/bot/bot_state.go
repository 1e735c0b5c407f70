package bot

import (
	"sync"

	"github.com/raine/ecosort-bot/internal/scan"
	"github.com/rs/zerolog/log"
)

type BotState struct {
	bot      *Bot
	mu       sync.Mutex
	sessions map[int64]*UserSession
}

func (bs *BotState) newUserSession(chatID int64) *UserSession {
	scanner := scan.NewScanner(bs.bot.classifier)
	if bs.bot.observer != nil {
		scanner.WithObserver(bs.bot.observer)
	}
	log.Info().Int64("chatId", chatID).Msg("new user session created")
	return newUserSession(chatID, bs.bot.tg, scanner)
}

func (bs *BotState) getUserSession(chatID int64) *UserSession {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if session, ok := bs.sessions[chatID]; ok {
		return session
	}
	session := bs.newUserSession(chatID)
	// Set the bot as the message handler and start the worker
	session.SetHandler(bs.bot)
	session.StartWorker()
	bs.sessions[chatID] = session
	return session
}

func (b *Bot) NewBotState() BotState {
	return BotState{
		bot:      b,
		sessions: make(map[int64]*UserSession),
	}
}

// Shutdown stops all session workers gracefully.
func (bs *BotState) Shutdown() {
	bs.mu.Lock()
	sessions := make([]*UserSession, 0, len(bs.sessions))
	for _, session := range bs.sessions {
		sessions = append(sessions, session)
	}
	bs.mu.Unlock()

	// Stop all workers outside the lock
	for _, session := range sessions {
		session.Stop()
	}
	log.Info().Int("count", len(sessions)).Msg("stopped all session workers")
}
