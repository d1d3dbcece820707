package config

import (
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/Termos47/info-sender/internal/testutil"
)

func fakeEnv(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

var requiredEnv = map[string]string{
	"TELEGRAM_TOKEN": "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11",
	"CHANNEL_ID":     "@testchannel",
	"OWNER_ID":       "42",
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	c, err := Load(fakeEnv(requiredEnv))
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, c.OwnerID, int64(42))
	testutil.AssertEqual(t, c.CheckInterval, 5*time.Minute)
	testutil.AssertEqual(t, c.PostDelay, 3*time.Second)
	testutil.AssertEqual(t, c.MaxHistory, 100)
	testutil.AssertEqual(t, c.HistoryFile, "sent_news.txt")
	testutil.AssertEqual(t, c.FreshWindow, 24*time.Hour)
	testutil.AssertEqual(t, c.IncludeUndated, false)
	testutil.AssertEqual(t, c.MaxPerFeed, 10)
	testutil.AssertEqual(t, c.TextColor, color.RGBA{255, 255, 255, 255})
	testutil.AssertEqual(t, c.Background, color.RGBA{40, 40, 40, 255})
	testutil.AssertEqual(t, len(c.FeedURLs), 1)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"TELEGRAM_TOKEN", "CHANNEL_ID", "OWNER_ID"} {
		vars := make(map[string]string)
		for k, v := range requiredEnv {
			if k != name {
				vars[k] = v
			}
		}
		_, err := Load(fakeEnv(vars))
		if err == nil {
			t.Fatalf("expected error when %s is unset", name)
		}
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error %q doesn't mention %s", err, name)
		}
	}
}

func TestLoadNonNumericOwner(t *testing.T) {
	t.Parallel()

	vars := map[string]string{
		"TELEGRAM_TOKEN": "t",
		"CHANNEL_ID":     "c",
		"OWNER_ID":       "not-a-number",
	}
	if _, err := Load(fakeEnv(vars)); err == nil {
		t.Fatal("expected error for non-numeric OWNER_ID")
	}
}

func TestEnvList(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"https://a/rss", []string{"https://a/rss"}},
		{"https://a/rss,https://b/rss", []string{"https://a/rss", "https://b/rss"}},
		{`["https://a/rss", 'https://b/rss']`, []string{"https://a/rss", "https://b/rss"}},
		{" https://a/rss , ", []string{"https://a/rss"}},
	}
	for _, tc := range cases {
		got := envList(fakeEnv(map[string]string{"RSS_URLS": tc.in}), "RSS_URLS", nil)
		testutil.AssertEqual(t, got, tc.want)
	}
}

func TestEnvColorMalformed(t *testing.T) {
	t.Parallel()

	def := color.RGBA{1, 2, 3, 255}
	for _, in := range []string{"255,255", "a,b,c", "300,0,0", ""} {
		got := envColor(fakeEnv(map[string]string{"TEXT_COLOR": in}), "TEXT_COLOR", def)
		testutil.AssertEqual(t, got, def)
	}
	got := envColor(fakeEnv(map[string]string{"TEXT_COLOR": "10, 20, 30"}), "TEXT_COLOR", def)
	testutil.AssertEqual(t, got, color.RGBA{10, 20, 30, 255})
}

func TestEnhancerEnabled(t *testing.T) {
	t.Parallel()

	cases := []struct {
		disable bool
		key     string
		folder  string
		want    bool
	}{
		{false, "k", "f", true},
		{true, "k", "f", false},
		{false, "", "f", false},
		{false, "k", "", false},
	}
	for _, tc := range cases {
		c := &Config{DisableYaGPT: tc.disable, YandexAPIKey: tc.key, YandexFolderID: tc.folder}
		testutil.AssertEqual(t, c.EnhancerEnabled(), tc.want)
	}
}
