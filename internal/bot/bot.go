// © 2025 Termos47. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package bot is the operator command surface of the poster.
//
// It long-polls the Telegram Bot API and reacts to commands from exactly
// one owner chat. Updates from anybody else are dropped without a reply,
// the bot stays invisible to strangers.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Termos47/info-sender/internal/controller"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Controller is the subset of the cycle controller the bot drives.
type Controller interface {
	Start() error
	Stop() bool
	Restart() error
	Running() bool
	Stats() controller.Stats
	Sources() []string
}

// Renderer draws a headline card; used by the /test_image command.
type Renderer interface {
	Render(title string) (string, error)
}

// Options configures the bot.
type Options struct {
	// OwnerID is the only chat allowed to issue commands.
	OwnerID int64
	// Channel is the publishing target, checked on startup.
	Channel string
	// Renderer is optional; without it /test_image reports that image
	// generation is off.
	Renderer Renderer
	// EnhancerOn reports whether the text enhancer is configured.
	EnhancerOn bool
	Log        *slog.Logger
}

// Bot long-polls updates and executes owner commands.
type Bot struct {
	api  *tgbotapi.BotAPI
	ctrl Controller
	opts Options
	log  *slog.Logger
}

// Notifier sends operational messages to the owner chat. It exists as a
// separate type so the cycle controller can notify the owner without
// depending on the whole Bot.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

// NewNotifier returns a Notifier for the given chat.
func NewNotifier(api *tgbotapi.BotAPI, chatID int64, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{api: api, chatID: chatID, log: log}
}

// Notify sends text to the owner. Failures are logged and swallowed:
// notifications must never break the poster.
func (n *Notifier) Notify(text string) {
	if _, err := n.api.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
		n.log.Warn("owner notification failed", "error", err)
	}
}

// Reply keyboard labels. Each one doubles as a command alias.
const (
	btnStart   = "▶️ Старт"
	btnPause   = "⏸ Пауза"
	btnStatus  = "📊 Статус"
	btnStats   = "📈 Статистика"
	btnRestart = "🔄 Рестарт"
	btnSources = "📋 Источники"
)

// New wires the bot to its controller.
func New(api *tgbotapi.BotAPI, ctrl Controller, opts Options) *Bot {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Bot{api: api, ctrl: ctrl, opts: opts, log: opts.Log}
}

// Notify sends an operational message to the owner chat.
func (b *Bot) Notify(text string) {
	NewNotifier(b.api, b.opts.OwnerID, b.log).Notify(text)
}

// Run performs the startup self-check, registers the command menu and
// processes updates until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.selfCheck(); err != nil {
		return err
	}
	b.registerCommands()

	b.Notify("🤖 Бот запущен и готов к работе.\nИспользуйте /help для списка команд.")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(update)
		}
	}
}

// selfCheck verifies the token and that the bot can reach the channel.
func (b *Bot) selfCheck() error {
	me, err := b.api.GetMe()
	if err != nil {
		return fmt.Errorf("bot: token check failed: %w", err)
	}
	b.log.Info("authorized", "username", me.UserName)

	action := tgbotapi.ChatActionConfig{
		BaseChat: b.channelChat(),
		Action:   tgbotapi.ChatTyping,
	}
	if _, err := b.api.Request(action); err != nil {
		// The token works, so the owner can be told what is wrong.
		b.Notify("❌ Канал " + b.opts.Channel + " недоступен: " + err.Error())
		return fmt.Errorf("bot: channel %s is not reachable: %w", b.opts.Channel, err)
	}
	return nil
}

func (b *Bot) registerCommands() {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Приветствие и меню"},
		tgbotapi.BotCommand{Command: "help", Description: "Список команд"},
		tgbotapi.BotCommand{Command: "start_bot", Description: "Запустить публикацию"},
		tgbotapi.BotCommand{Command: "stop", Description: "Остановить публикацию"},
		tgbotapi.BotCommand{Command: "restart", Description: "Перезапустить цикл"},
		tgbotapi.BotCommand{Command: "status", Description: "Текущее состояние"},
		tgbotapi.BotCommand{Command: "stats", Description: "Статистика за сессию"},
		tgbotapi.BotCommand{Command: "sources", Description: "Список RSS источников"},
		tgbotapi.BotCommand{Command: "yagpt_status", Description: "Статус YandexGPT"},
		tgbotapi.BotCommand{Command: "test_image", Description: "Проверить генерацию изображения"},
	)
	if _, err := b.api.Request(cmds); err != nil {
		b.log.Warn("registering command menu failed", "error", err)
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	if msg.From == nil || msg.From.ID != b.opts.OwnerID {
		// Strangers get no reply at all.
		b.log.Debug("ignoring message from non-owner", "from", msg.From)
		return
	}

	cmd := msg.Command()
	args := msg.CommandArguments()
	if cmd == "" {
		// Reply keyboard buttons arrive as plain text.
		cmd = buttonCommand(msg.Text)
	}

	switch cmd {
	case "start", "help":
		b.reply(b.helpText(), true)
	case "start_bot":
		b.handleStart()
	case "stop", "pause":
		b.handleStop()
	case "restart":
		b.handleRestart()
	case "status":
		b.reply(b.statusText(), false)
	case "stats":
		b.reply(b.statsText(), false)
	case "sources":
		b.reply(b.sourcesText(), false)
	case "yagpt_status":
		b.reply(b.yagptText(), false)
	case "test_image":
		b.handleTestImage(args)
	default:
		b.reply("Неизвестная команда. /help", false)
	}
}

func buttonCommand(text string) string {
	switch strings.TrimSpace(text) {
	case btnStart:
		return "start_bot"
	case btnPause:
		return "stop"
	case btnStatus:
		return "status"
	case btnStats:
		return "stats"
	case btnRestart:
		return "restart"
	case btnSources:
		return "sources"
	}
	return ""
}

func (b *Bot) handleStart() {
	switch err := b.ctrl.Start(); {
	case err == nil:
		b.reply("▶️ Публикация запущена.", false)
	case err == controller.ErrAlreadyRunning:
		b.reply("Бот уже работает.", false)
	default:
		b.reply("❌ Не удалось запустить: "+err.Error(), false)
	}
}

func (b *Bot) handleStop() {
	if b.ctrl.Stop() {
		b.reply("⏸ Публикация остановлена.", false)
	} else {
		b.reply("Бот уже остановлен.", false)
	}
}

func (b *Bot) handleRestart() {
	if err := b.ctrl.Restart(); err != nil {
		b.reply("❌ Перезапуск не удался: "+err.Error(), false)
		return
	}
	b.reply("🔄 Перезапущено. Статистика сброшена.", false)
}

func (b *Bot) handleTestImage(args string) {
	if b.opts.Renderer == nil {
		b.reply("Генерация изображений отключена.", false)
		return
	}

	title := strings.TrimSpace(args)
	if title == "" {
		title = "Проверка генерации изображения"
	}

	path, err := b.opts.Renderer.Render(title)
	if err != nil {
		b.reply("❌ Генерация не удалась: "+err.Error(), false)
		return
	}

	photo := tgbotapi.NewPhoto(b.opts.OwnerID, tgbotapi.FilePath(path))
	photo.Caption = "Тестовое изображение"
	if _, err := b.api.Send(photo); err != nil {
		b.log.Warn("sending test image failed", "error", err)
		b.reply("❌ Не удалось отправить изображение: "+err.Error(), false)
	}
}

func (b *Bot) helpText() string {
	return strings.Join([]string{
		"Команды:",
		"/start_bot - запустить публикацию",
		"/stop - остановить публикацию",
		"/restart - перезапустить цикл и сбросить статистику",
		"/status - текущее состояние",
		"/stats - статистика за сессию",
		"/sources - список RSS источников",
		"/yagpt_status - статус YandexGPT",
		"/test_image [текст] - проверить генерацию изображения",
	}, "\n")
}

func (b *Bot) statusText() string {
	if !b.ctrl.Running() {
		return "⏸ Остановлен."
	}
	s := b.ctrl.Stats()
	return fmt.Sprintf("▶️ Работает.\nПоследняя проверка: %s\nЦиклов: %d",
		formatTime(s.LastCheck), s.Cycles)
}

func (b *Bot) statsText() string {
	s := b.ctrl.Stats()
	uptime := "-"
	if !s.StartTime.IsZero() {
		uptime = time.Since(s.StartTime).Round(time.Second).String()
	}
	return strings.Join([]string{
		"📈 Статистика:",
		"Аптайм: " + uptime,
		"Циклов: " + strconv.Itoa(s.Cycles),
		"Просмотрено записей: " + strconv.Itoa(s.Seen),
		"Опубликовано: " + strconv.Itoa(s.Published),
		"Улучшено текстов: " + strconv.Itoa(s.EnhanceUsed),
		"Ошибок улучшения: " + strconv.Itoa(s.EnhanceErrors),
		"Изображений: " + strconv.Itoa(s.ImagesGenerated),
		"Ошибок: " + strconv.Itoa(s.Errors),
		"Последний пост: " + formatTime(s.LastPost),
	}, "\n")
}

func (b *Bot) sourcesText() string {
	sources := b.ctrl.Sources()
	if len(sources) == 0 {
		return "Источники не настроены."
	}
	var sb strings.Builder
	sb.WriteString("📋 Источники:\n")
	for i, s := range sources {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) yagptText() string {
	if b.opts.EnhancerOn {
		return "✅ YandexGPT включен: заголовки и описания переписываются."
	}
	return "⚪ YandexGPT выключен: публикуются оригинальные тексты."
}

func (b *Bot) reply(text string, withKeyboard bool) {
	msg := tgbotapi.NewMessage(b.opts.OwnerID, text)
	if withKeyboard {
		msg.ReplyMarkup = keyboard()
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("reply failed", "error", err)
	}
}

func keyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnStart),
			tgbotapi.NewKeyboardButton(btnPause),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnStatus),
			tgbotapi.NewKeyboardButton(btnStats),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRestart),
			tgbotapi.NewKeyboardButton(btnSources),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func (b *Bot) channelChat() tgbotapi.BaseChat {
	if strings.HasPrefix(b.opts.Channel, "@") {
		return tgbotapi.BaseChat{ChannelUsername: b.opts.Channel}
	}
	id, _ := strconv.ParseInt(b.opts.Channel, 10, 64)
	return tgbotapi.BaseChat{ChatID: id}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02.01.2006 15:04:05")
}
