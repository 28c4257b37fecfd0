package telegram

// Update is one inbound Telegram Bot API update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is an inbound chat message. Text is empty for non-text payloads
// (stickers, photos and so on), which the engine treats as a no-op.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      *Chat  `json:"chat,omitempty"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Chat identifies the conversation an update belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"` // private|group|supergroup|channel
}

// User is the Telegram account that sent an update.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// ReplyKeyboardMarkup attaches a custom reply keyboard, one button per row.
type ReplyKeyboardMarkup struct {
	Keyboard        [][]string `json:"keyboard"`
	ResizeKeyboard  bool       `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard bool       `json:"one_time_keyboard,omitempty"`
}

// ReplyKeyboardRemove clears any previously attached reply keyboard.
type ReplyKeyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

// Keyboard builds a single-use, auto-resizing reply keyboard from button
// labels, or a keyboard removal when no labels are given.
func Keyboard(labels []string) interface{} {
	if len(labels) == 0 {
		return ReplyKeyboardRemove{RemoveKeyboard: true}
	}
	rows := make([][]string, 0, len(labels))
	for _, label := range labels {
		rows = append(rows, []string{label})
	}
	return ReplyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true, OneTimeKeyboard: true}
}

// SendMessageParams are the fields of a sendMessage call.
type SendMessageParams struct {
	ChatID              int64       `json:"chat_id"`
	Text                string      `json:"text"`
	ParseMode           string      `json:"parse_mode,omitempty"`
	DisableNotification bool        `json:"disable_notification,omitempty"`
	ReplyMarkup         interface{} `json:"reply_markup,omitempty"`
}

// SendPhotoParams are the fields of a sendPhoto call. Photo is a Telegram
// file id from the content script.
type SendPhotoParams struct {
	ChatID              int64       `json:"chat_id"`
	Photo               string      `json:"photo"`
	Caption             string      `json:"caption,omitempty"`
	DisableNotification bool        `json:"disable_notification,omitempty"`
	ReplyMarkup         interface{} `json:"reply_markup,omitempty"`
}

// SendLocationParams are the fields of a sendLocation call.
type SendLocationParams struct {
	ChatID              int64       `json:"chat_id"`
	Latitude            float64     `json:"latitude"`
	Longitude           float64     `json:"longitude"`
	DisableNotification bool        `json:"disable_notification,omitempty"`
	ReplyMarkup         interface{} `json:"reply_markup,omitempty"`
}

// SendDocumentParams are the fields of a sendDocument call.
type SendDocumentParams struct {
	ChatID      int64       `json:"chat_id"`
	Document    string      `json:"document"`
	Caption     string      `json:"caption,omitempty"`
	ReplyMarkup interface{} `json:"reply_markup,omitempty"`
}

type getMeResponse struct {
	OK     bool `json:"ok"`
	Result User `json:"result"`
}

type getUpdatesResponse struct {
	OK     bool     `json:"ok"`
	Result []Update `json:"result"`
}

type okResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}
