package narrator

import (
	"context"
	"fmt"

	logx "livehost/pkg/logx"
)

// persona keeps replies short, friendly, steers pricing and technical
// questions away, and stays inside TikTok Shop rules.
const persona = "Kamu adalah host AI TikTok Live berbahasa Indonesia. " +
	"Jawab dengan singkat, ramah, dan relevan. Jangan menyebut harga produk. " +
	"Arahkan pertanyaan teknis ke link bio. Patuhi aturan TikTok Shop."

const (
	// Apology is the fixed fallback when the completion collaborator is
	// unavailable. It must never be replaced by an error: the narration
	// pipeline keeps flowing no matter what the collaborator does.
	Apology = "Maaf, saya sedang bermasalah. Coba lagi ya."

	// thanks fills in when the collaborator returns an empty reply.
	thanks = "Terima kasih!"

	// WelcomeLine is spoken when the dashboard boots.
	WelcomeLine = "Selamat datang kembali di live. Sistem host AI sudah aktif."

	// ReconnectLine is spoken whenever the upstream session (re)connects.
	ReconnectLine = "Sinyal stabil, live kembali tersambung."

	maxReplyTokens = 100
)

// Completer is the chat-completion collaborator.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (reply string, tokens int, err error)
}

// Budget gates collaborator spending. Allow is checked before each call;
// Add records what a call consumed.
type Budget interface {
	Allow() bool
	Add(tokens int)
}

// Service turns upstream events into narration lines.
type Service struct {
	completer Completer
	budget    Budget
	log       logx.Logger
}

func New(completer Completer, budget Budget, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{completer: completer, budget: budget, log: log}
}

// Greet builds the fixed member-join greeting. Deterministic, no
// collaborator involved.
func Greet(user string) string {
	return fmt.Sprintf("Halo, selamat datang @%s di live kita.", user)
}

// Promo builds the idle promotional line for one catalog slot.
func Promo(id int, name string) string {
	if name == "" {
		name = "Produk bagus"
	}
	return fmt.Sprintf("Produk nomor %d ini lagi banyak dicari. %s. Cek keranjang kuning ya!", id, name)
}

// RespondToChat asks the collaborator for a reply to one viewer message
// and wraps it with attribution. It never fails: collaborator outages
// and exhausted token budgets degrade to the fixed apology line.
func (s *Service) RespondToChat(ctx context.Context, user, message string) string {
	reply := s.reply(ctx, message)
	return fmt.Sprintf("@%s bilang: %s. %s", user, message, reply)
}

func (s *Service) reply(ctx context.Context, message string) string {
	if s.completer == nil {
		return Apology
	}
	if s.budget != nil && !s.budget.Allow() {
		s.log.Warn("token budget exhausted; skipping completion")
		return Apology
	}

	text, tokens, err := s.completer.Complete(ctx, persona, message, maxReplyTokens)
	if s.budget != nil && tokens > 0 {
		s.budget.Add(tokens)
	}
	if err != nil {
		s.log.Warn("completion failed", logx.Err(err))
		return Apology
	}
	if text == "" {
		return thanks
	}
	return text
}
