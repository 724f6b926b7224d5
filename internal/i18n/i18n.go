// Package i18n localizes the labels of exam views. Translations live in
// embedded JSON files, one per language.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	bundle *i18n.Bundle
	// supported lists the languages that have a locale file, in load order.
	supported []language.Tag
	matcher   language.Matcher
	fallback  language.Tag
)

// Init loads the embedded translations. lang is the default language; it
// must be served by one of the locale files, possibly through a more
// general tag ("en-GB" is served by "en").
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return fmt.Errorf("list locale files: %w", err)
	}
	var tags []language.Tag
	for _, name := range files {
		data, err := localeFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", name, err)
		}
		mf, err := b.ParseMessageFileBytes(data, path.Base(name))
		if err != nil {
			return fmt.Errorf("parse locale file %s: %w", name, err)
		}
		tags = append(tags, mf.Tag)
		slog.Debug("loaded locale file", "file", name, "lang", mf.Tag, "messages", len(mf.Messages))
	}
	if len(tags) == 0 {
		return errors.New("no locale files embedded")
	}

	m := language.NewMatcher(tags)
	_, idx, conf := m.Match(tag)
	if conf == language.No {
		return fmt.Errorf("no translations for language %q", lang)
	}

	bundle, supported, matcher, fallback = b, tags, m, tags[idx]
	slog.Info("translations loaded", "languages", len(tags), "default", fallback)
	return nil
}

// Match picks the supported language that best fits the given preferences.
// Each preference is a language tag or an Accept-Language value and they are
// tried in order; empty and unsupported ones are skipped. The default
// language is returned when none fits.
func Match(prefs ...string) language.Tag {
	if matcher == nil {
		return fallback
	}
	for _, p := range prefs {
		if p == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(p)
		if err != nil || len(tags) == 0 {
			continue
		}
		if _, idx, conf := matcher.Match(tags...); conf != language.No {
			return supported[idx]
		}
	}
	return fallback
}

// NewLocalizer creates a localizer for the given languages in order of
// preference. Entries may be Accept-Language header values.
func NewLocalizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(bundle, langs...)
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
		return loc
	}
	return NewLocalizer(fallback.String())
}

// localize renders cfg, falling back to the message ID when it cannot.
func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	if bundle == nil {
		return cfg.MessageID
	}
	s, err := localizerFromCtx(ctx).Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

// T translates a message by ID.
func T(ctx context.Context, msgID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message by ID. The count is available to the
// template as .Count.
func Tp(ctx context.Context, msgID string, count int) string {
	return Tpd(ctx, msgID, count, nil)
}

// Tpd is Tp with extra template data.
func Tpd(ctx context.Context, msgID string, count int, data map[string]any) string {
	td := make(map[string]any, len(data)+1)
	for k, v := range data {
		td[k] = v
	}
	td["Count"] = count
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: td,
	})
}
