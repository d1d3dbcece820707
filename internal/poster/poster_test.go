package poster

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Termos47/info-sender/internal/feed"
	"github.com/Termos47/info-sender/internal/testutil"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const tgToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

const okMessage = `{"ok":true,"result":{"message_id":1,"chat":{"id":1},"date":1}}`

// testBot spins up a fake Bot API server and returns a BotAPI pointed at
// it. Handlers are keyed by method name (for example, "sendPhoto").
func testBot(t *testing.T, handlers map[string]http.HandlerFunc) *tgbotapi.BotAPI {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+tgToken+"/getMe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"test","username":"testbot"}}`)
	})
	for method, h := range handlers {
		mux.HandleFunc("/bot"+tgToken+"/"+method, h)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected Bot API call: %s", r.URL.Path)
		http.Error(w, `{"ok":false}`, http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	bot, err := tgbotapi.NewBotAPIWithClient(tgToken, srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	return bot
}

func testImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "post.jpg")
	if err := os.WriteFile(path, []byte("not really a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func entry() feed.Entry {
	return feed.Entry{ID: "https://example.com/news/1", Title: "t", Body: "b"}
}

func TestPublishTextOnly(t *testing.T) {
	t.Parallel()

	var sent atomic.Int32
	bot := testBot(t, map[string]http.HandlerFunc{
		"sendMessage": func(w http.ResponseWriter, r *http.Request) {
			sent.Add(1)
			r.ParseForm()
			text := r.FormValue("text")
			if !strings.Contains(text, "<b>Заголовок</b>") {
				t.Errorf("text missing bold title: %q", text)
			}
			if !strings.Contains(text, "https://example.com/news/1") {
				t.Errorf("text missing link: %q", text)
			}
			testutil.AssertEqual(t, r.FormValue("parse_mode"), "HTML")
			fmt.Fprint(w, okMessage)
		},
	})

	p := New(bot, "@channel", discard())
	if err := p.Publish(entry(), "Заголовок", "Описание", ""); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, sent.Load(), int32(1))
}

func TestPublishPhotoFallback(t *testing.T) {
	t.Parallel()

	var photoCalls, textCalls atomic.Int32
	bot := testBot(t, map[string]http.HandlerFunc{
		"sendPhoto": func(w http.ResponseWriter, r *http.Request) {
			photoCalls.Add(1)
			http.Error(w, `{"ok":false,"error_code":400,"description":"Bad Request"}`, http.StatusBadRequest)
		},
		"sendMessage": func(w http.ResponseWriter, r *http.Request) {
			textCalls.Add(1)
			fmt.Fprint(w, okMessage)
		},
	})

	img := testImage(t)
	p := New(bot, "@channel", discard())
	if err := p.Publish(entry(), "t", "b", img); err != nil {
		t.Fatalf("fallback should succeed, got %v", err)
	}
	testutil.AssertEqual(t, photoCalls.Load(), int32(1))
	testutil.AssertEqual(t, textCalls.Load(), int32(1))

	if _, err := os.Stat(img); !os.IsNotExist(err) {
		t.Fatal("image file should be removed after the attempt")
	}
}

func TestPublishPhotoSuccessSkipsText(t *testing.T) {
	t.Parallel()

	var photoCalls atomic.Int32
	bot := testBot(t, map[string]http.HandlerFunc{
		"sendPhoto": func(w http.ResponseWriter, r *http.Request) {
			photoCalls.Add(1)
			fmt.Fprint(w, okMessage)
		},
	})

	img := testImage(t)
	p := New(bot, "@channel", discard())
	if err := p.Publish(entry(), "t", "b", img); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, photoCalls.Load(), int32(1))

	if _, err := os.Stat(img); !os.IsNotExist(err) {
		t.Fatal("image file should be removed after a successful send too")
	}
}

func TestPublishTotalFailure(t *testing.T) {
	t.Parallel()

	fail := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"error_code":400,"description":"Bad Request"}`, http.StatusBadRequest)
	}
	bot := testBot(t, map[string]http.HandlerFunc{
		"sendPhoto":   fail,
		"sendMessage": fail,
	})

	p := New(bot, "@channel", discard())
	if err := p.Publish(entry(), "t", "b", testImage(t)); err == nil {
		t.Fatal("expected error when both sends fail")
	}
}

func TestFormatMessage(t *testing.T) {
	t.Parallel()

	msg := formatMessage("A <b>title", "body & text", "https://example.com/1")
	if !strings.Contains(msg, "A &lt;b&gt;title") {
		t.Errorf("title not escaped: %q", msg)
	}
	if !strings.Contains(msg, "body &amp; text") {
		t.Errorf("body not escaped: %q", msg)
	}

	long := formatMessage("t", strings.Repeat("x", 2000), "l")
	if strings.Contains(long, strings.Repeat("x", 501)) {
		t.Error("body not truncated to the post limit")
	}
	if !strings.Contains(long, "...") {
		t.Error("truncated body missing ellipsis")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	testutil.AssertEqual(t, truncate("short", 10), "short")
	got := truncate(strings.Repeat("я", 20), 10)
	testutil.AssertEqual(t, got, strings.Repeat("я", 7)+"...")
}
