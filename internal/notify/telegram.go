package notify

import (
	"context"
	"fmt"
	"sync"
	"trade_guard/internal/models"
	"trade_guard/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const queueSize = 64

type sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Book — откуда /positions и /orders берут данные.
type Book interface {
	ListOpenPositions(ctx context.Context) ([]*models.Position, error)
	ListWaitingConditionalOrders(ctx context.Context) ([]*models.ConditionalOrder, error)
}

// Telegram — пассивный нотифайер + команды /positions и /orders.
// Send не блокирует: сообщения уходят из фоновой горутины, при переполнении очереди теряются.
type Telegram struct {
	api    *tgbot.BotAPI
	out    sender
	chatID int64
	book   Book

	queue chan string
	wg    sync.WaitGroup
}

func NewTelegram(token string, chatID int64, book Book) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	t := newTelegram(b, chatID, book)
	t.api = b
	return t, nil
}

func newTelegram(out sender, chatID int64, book Book) *Telegram {
	return &Telegram{
		out:    out,
		chatID: chatID,
		book:   book,
		queue:  make(chan string, queueSize),
	}
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.chatID == 0 {
		return
	}
	select {
	case t.queue <- msg:
	default:
		logger.Warn("[NOTIFY] queue full, dropped: %s", msg)
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

func (t *Telegram) deliver(msg string) {
	if _, err := t.out.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Error("[NOTIFY] telegram send: %v", err)
	}
}

// Start: отправка очереди + long-polling команд (если есть живой бот).
func (t *Telegram) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				t.drain()
				return
			case msg := <-t.queue:
				t.deliver(msg)
			}
		}
	}()

	if t.api == nil {
		return
	}
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.api.GetUpdatesChan(u)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				t.api.StopReceivingUpdates()
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, upd)
			}
		}
	}()
}

// Wait ждёт выхода фоновых горутин после отмены контекста Start.
func (t *Telegram) Wait() { t.wg.Wait() }

// drain досылает то, что успело попасть в очередь.
func (t *Telegram) drain() {
	for {
		select {
		case msg := <-t.queue:
			t.deliver(msg)
		default:
			return
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, upd tgbot.Update) {
	m := upd.Message
	if m == nil || m.Chat == nil || m.Chat.ID != t.chatID || !m.IsCommand() {
		return
	}
	switch m.Command() {
	case "positions":
		t.handlePositions(ctx)
	case "orders":
		t.handleOrders(ctx)
	}
}

// /positions — открытые позиции из стора
func (t *Telegram) handlePositions(ctx context.Context) {
	if t.book == nil {
		return
	}
	positions, err := t.book.ListOpenPositions(ctx)
	if err != nil {
		t.Sendf("❗️ Ошибка получения позиций: %v", err)
		return
	}
	t.Send(FormatPositions(positions))
}

// /orders — ожидающие условные ордера
func (t *Telegram) handleOrders(ctx context.Context) {
	if t.book == nil {
		return
	}
	orders, err := t.book.ListWaitingConditionalOrders(ctx)
	if err != nil {
		t.Sendf("❗️ Ошибка получения ордеров: %v", err)
		return
	}
	t.Send(FormatOrders(orders))
}
