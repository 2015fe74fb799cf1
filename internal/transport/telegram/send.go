package telegram

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

const telegramTextLimit = 4000

// splitText splits long messages into chunks Telegram accepts, preferring
// newline boundaries.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid tiny chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func markup(opt *kit.SendOptions) *tele.ReplyMarkup {
	if opt == nil {
		return nil
	}
	switch {
	case len(opt.Inline) > 0:
		rows := make([][]tele.InlineButton, 0, len(opt.Inline))
		for _, r := range opt.Inline {
			row := make([]tele.InlineButton, 0, len(r))
			for _, b := range r {
				row = append(row, tele.InlineButton{Text: b.Text, Data: b.Data})
			}
			rows = append(rows, row)
		}
		return &tele.ReplyMarkup{InlineKeyboard: rows}
	case len(opt.Menu) > 0:
		rows := make([][]tele.ReplyButton, 0, len(opt.Menu))
		for _, r := range opt.Menu {
			row := make([]tele.ReplyButton, 0, len(r))
			for _, text := range r {
				row = append(row, tele.ReplyButton{Text: text})
			}
			rows = append(rows, row)
		}
		return &tele.ReplyMarkup{ReplyKeyboard: rows, ResizeKeyboard: true}
	case opt.RemoveMenu:
		return &tele.ReplyMarkup{RemoveKeyboard: true}
	}
	return nil
}

// Send delivers text, split as needed. Markup goes on the first chunk only.
func (a *Adapter) Send(ctx context.Context, chatID int64, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	chat := &tele.Chat{ID: chatID}
	rm := markup(opt)

	var first kit.MessageRef
	for i, chunk := range splitText(text, telegramTextLimit) {
		if err := a.limiter.Wait(ctx); err != nil {
			return first, err
		}
		sendOpt := &tele.SendOptions{DisableWebPagePreview: true}
		if i == 0 && rm != nil {
			sendOpt.ReplyMarkup = rm
		}
		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: chatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := a.Send(ctx, chatID, text, nil)
	return err
}

func (a *Adapter) SendPhoto(ctx context.Context, chatID int64, ref, caption string) error {
	return a.sendFile(ctx, chatID, &tele.Photo{File: tele.File{FileID: ref}, Caption: caption})
}

func (a *Adapter) SendDocument(ctx context.Context, chatID int64, ref, caption string) error {
	return a.sendFile(ctx, chatID, &tele.Document{File: tele.File{FileID: ref}, Caption: caption})
}

func (a *Adapter) SendAudio(ctx context.Context, chatID int64, ref, caption string) error {
	return a.sendFile(ctx, chatID, &tele.Audio{File: tele.File{FileID: ref}, Caption: caption})
}

func (a *Adapter) sendFile(ctx context.Context, chatID int64, what tele.Sendable) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.Send(&tele.Chat{ID: chatID}, what)
	return err
}

// EditText replaces a message's text. Overflow is sent as new messages.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	chunks := splitText(text, telegramTextLimit)
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	sendOpt := &tele.SendOptions{DisableWebPagePreview: true}
	if rm := markup(opt); rm != nil {
		sendOpt.ReplyMarkup = rm
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if _, err := a.bot.Edit(m, chunks[0], sendOpt); err != nil {
		return err
	}
	for _, chunk := range chunks[1:] {
		if _, err := a.Send(ctx, ref.ChatID, chunk, nil); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}
