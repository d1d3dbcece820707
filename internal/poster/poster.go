// © 2025 Termos47. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package poster formats and publishes entries to the Telegram channel.
package poster

import (
	"fmt"
	"html"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Termos47/info-sender/internal/feed"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram length limits.
const (
	maxBodyLen    = 500  // description shown in a post
	maxCaptionLen = 1024 // sendPhoto caption
	maxMessageLen = 4096 // sendMessage text
)

// Poster publishes entries to a fixed channel.
type Poster struct {
	bot     *tgbotapi.BotAPI
	channel string // numeric chat ID or @username
	log     *slog.Logger
}

// New returns a Poster sending to channel.
func New(bot *tgbotapi.BotAPI, channel string, log *slog.Logger) *Poster {
	return &Poster{bot: bot, channel: channel, log: log}
}

// Publish sends one entry, preferring a photo-with-caption post when an
// image is available and falling back to a text-only post if the photo
// send fails. The image file, when present, is removed after the attempt
// regardless of the outcome.
func (p *Poster) Publish(e feed.Entry, title, body, imagePath string) error {
	text := formatMessage(title, body, e.ID)

	if imagePath != "" {
		defer os.Remove(imagePath)

		photo := tgbotapi.PhotoConfig{
			BaseFile: tgbotapi.BaseFile{
				BaseChat: p.chat(),
				File:     tgbotapi.FilePath(imagePath),
			},
			Caption:   truncate(text, maxCaptionLen),
			ParseMode: tgbotapi.ModeHTML,
		}
		if _, err := p.bot.Send(photo); err == nil {
			return nil
		} else {
			p.log.Warn("photo send failed, falling back to text", "entry", e.ID, "error", err)
		}
	}

	msg := tgbotapi.MessageConfig{
		BaseChat:  p.chat(),
		Text:      truncate(text, maxMessageLen),
		ParseMode: tgbotapi.ModeHTML,
	}
	if _, err := p.bot.Send(msg); err != nil {
		return fmt.Errorf("poster: sending %s: %w", e.ID, err)
	}
	return nil
}

func (p *Poster) chat() tgbotapi.BaseChat {
	if strings.HasPrefix(p.channel, "@") {
		return tgbotapi.BaseChat{ChannelUsername: p.channel}
	}
	id, _ := strconv.ParseInt(p.channel, 10, 64)
	return tgbotapi.BaseChat{ChatID: id}
}

func formatMessage(title, body, link string) string {
	body = truncate(body, maxBodyLen)
	return fmt.Sprintf("<b>%s</b>\n\n%s\n\n<a href=%q>🔗 Читать полностью</a>",
		html.EscapeString(title), html.EscapeString(body), link)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
