// © 2025 Termos47. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config loads program configuration from environment variables.
//
// Every setting has a documented default except the Telegram credentials
// and the operator ID, which are required and cause Load to fail when
// missing.
package config

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"
)

// Config holds all settings of the poster.
type Config struct {
	// Telegram.
	TelegramToken string // TELEGRAM_TOKEN, required
	ChannelID     string // CHANNEL_ID, required; numeric ID or @username
	OwnerID       int64  // OWNER_ID, required; the only authorized operator

	// Polling.
	FeedURLs      []string      // RSS_URLS, comma-separated
	CheckInterval time.Duration // CHECK_INTERVAL, seconds
	PostDelay     time.Duration // POST_DELAY, seconds between publishes

	// Dedup history.
	MaxHistory  int    // MAX_HISTORY, cap on remembered entry IDs
	HistoryFile string // HISTORY_FILE, newline-delimited snapshot

	// Freshness filter.
	FreshWindow    time.Duration // FRESH_WINDOW_HOURS, hours
	IncludeUndated bool          // FRESH_INCLUDE_UNDATED; entries without a publish time are dropped unless set
	MaxPerFeed     int           // MAX_PER_FEED, newest entries inspected per feed per cycle

	// YandexGPT enhancement.
	DisableYaGPT   bool   // DISABLE_YAGPT
	YandexAPIKey   string // YANDEX_API_KEY
	YandexFolderID string // YANDEX_FOLDER_ID

	// Image generation.
	EnableImages    bool       // ENABLE_IMAGE_GENERATION
	FontsDir        string     // FONTS_DIR
	TemplatesDir    string     // TEMPLATES_DIR
	OutputDir       string     // OUTPUT_DIR
	DefaultFont     string     // DEFAULT_FONT
	TextColor       color.RGBA // TEXT_COLOR, "r,g,b"
	StrokeColor     color.RGBA // STROKE_COLOR, "r,g,b"
	StrokeWidth     int        // STROKE_WIDTH
	MaxLines        int        // MAX_LINES
	TextAreaWidth   float64    // TEXT_AREA_WIDTH, fraction of image width
	TextPositionX   string     // TEXT_POSITION_X: left, center, right
	TextPositionY   string     // TEXT_POSITION_Y: top, center, bottom
	TextOffsetX     int        // TEXT_OFFSET_X, pixels
	TextOffsetY     int        // TEXT_OFFSET_Y, pixels
	FontSizeRatio   float64    // FONT_SIZE_RATIO, fraction of image height
	LineHeightRatio float64    // LINE_HEIGHT_RATIO
	Background      color.RGBA // BACKGROUND_COLOR, "r,g,b"
}

// Load builds a Config from the provided environment lookup function
// (usually [os.Getenv]). It returns an error if a required variable is
// missing or malformed; malformed optional values silently fall back to
// their defaults, matching the tolerant behavior operators rely on.
func Load(getenv func(string) string) (*Config, error) {
	c := &Config{
		TelegramToken: getenv("TELEGRAM_TOKEN"),
		ChannelID:     getenv("CHANNEL_ID"),

		FeedURLs:      envList(getenv, "RSS_URLS", []string{"https://www.interfax.ru/rss.asp"}),
		CheckInterval: time.Duration(envInt(getenv, "CHECK_INTERVAL", 300)) * time.Second,
		PostDelay:     time.Duration(envInt(getenv, "POST_DELAY", 3)) * time.Second,

		MaxHistory:  envInt(getenv, "MAX_HISTORY", 100),
		HistoryFile: envStr(getenv, "HISTORY_FILE", "sent_news.txt"),

		FreshWindow:    time.Duration(envInt(getenv, "FRESH_WINDOW_HOURS", 24)) * time.Hour,
		IncludeUndated: envBool(getenv, "FRESH_INCLUDE_UNDATED", false),
		MaxPerFeed:     envInt(getenv, "MAX_PER_FEED", 10),

		DisableYaGPT:   envBool(getenv, "DISABLE_YAGPT", false),
		YandexAPIKey:   getenv("YANDEX_API_KEY"),
		YandexFolderID: getenv("YANDEX_FOLDER_ID"),

		EnableImages:    envBool(getenv, "ENABLE_IMAGE_GENERATION", true),
		FontsDir:        envStr(getenv, "FONTS_DIR", "fonts"),
		TemplatesDir:    envStr(getenv, "TEMPLATES_DIR", "templates"),
		OutputDir:       envStr(getenv, "OUTPUT_DIR", "temp_images"),
		DefaultFont:     envStr(getenv, "DEFAULT_FONT", "Montserrat-Bold.ttf"),
		TextColor:       envColor(getenv, "TEXT_COLOR", color.RGBA{255, 255, 255, 255}),
		StrokeColor:     envColor(getenv, "STROKE_COLOR", color.RGBA{0, 0, 0, 255}),
		StrokeWidth:     envInt(getenv, "STROKE_WIDTH", 2),
		MaxLines:        envInt(getenv, "MAX_LINES", 3),
		TextAreaWidth:   envFloat(getenv, "TEXT_AREA_WIDTH", 0.8),
		TextPositionX:   envStr(getenv, "TEXT_POSITION_X", "center"),
		TextPositionY:   envStr(getenv, "TEXT_POSITION_Y", "center"),
		TextOffsetX:     envInt(getenv, "TEXT_OFFSET_X", 0),
		TextOffsetY:     envInt(getenv, "TEXT_OFFSET_Y", 0),
		FontSizeRatio:   envFloat(getenv, "FONT_SIZE_RATIO", 0.08),
		LineHeightRatio: envFloat(getenv, "LINE_HEIGHT_RATIO", 1.2),
		Background:      envColor(getenv, "BACKGROUND_COLOR", color.RGBA{40, 40, 40, 255}),
	}

	for _, req := range []struct{ name, val string }{
		{"TELEGRAM_TOKEN", c.TelegramToken},
		{"CHANNEL_ID", c.ChannelID},
		{"OWNER_ID", getenv("OWNER_ID")},
	} {
		if req.val == "" {
			return nil, fmt.Errorf("config: environment variable %s is required but not set", req.name)
		}
	}

	owner, err := strconv.ParseInt(getenv("OWNER_ID"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("config: OWNER_ID must be a numeric Telegram user ID: %v", err)
	}
	c.OwnerID = owner

	return c, nil
}

// EnhancerEnabled reports whether the YandexGPT pass should be attempted at
// all: the feature flag is on and both credentials are present.
func (c *Config) EnhancerEnabled() bool {
	return !c.DisableYaGPT && c.YandexAPIKey != "" && c.YandexFolderID != ""
}

func envStr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(getenv func(string) string, key string, def int) int {
	v := getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return i
}

func envFloat(getenv func(string) string, key string, def float64) float64 {
	v := getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(getenv func(string) string, key string, def bool) bool {
	v := getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}

// envList parses a comma-separated list, tolerating surrounding brackets
// and quotes around individual elements, e.g.
// `["https://a/rss", 'https://b/rss']`.
func envList(getenv func(string) string, key string, def []string) []string {
	v := getenv(key)
	if v == "" {
		return def
	}
	v = strings.Trim(v, "[]")
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.Trim(strings.TrimSpace(part), `'"`)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// envColor parses an "r,g,b" triple.
func envColor(getenv func(string) string, key string, def color.RGBA) color.RGBA {
	v := getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	if len(parts) != 3 {
		return def
	}
	var rgb [3]uint8
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return def
		}
		rgb[i] = uint8(n)
	}
	return color.RGBA{rgb[0], rgb[1], rgb[2], 255}
}
