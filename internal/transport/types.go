// Package transport holds the chat-platform neutral update and send types
// shared by the Telegram adapter and the intake router.
package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	// Attachment is set for document, photo and audio messages; Text then holds the caption.
	Attachment *Attachment
}

// Attachment kinds.
const (
	KindDocument = "document"
	KindPhoto    = "photo"
	KindAudio    = "audio"
)

type Attachment struct {
	Ref  string // platform file id, opaque outside the adapter
	Kind string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	// Inline renders an inline keyboard under the message.
	Inline [][]Button
	// Menu renders a persistent reply keyboard.
	Menu [][]string
	// RemoveMenu hides the reply keyboard.
	RemoveMenu bool
}

type BotCommand struct {
	Command     string
	Description string
}

// Adapter is a running chat connection.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	Send(ctx context.Context, chatID int64, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, ref, caption string) error
	SendDocument(ctx context.Context, chatID int64, ref, caption string) error
	SendAudio(ctx context.Context, chatID int64, ref, caption string) error

	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
