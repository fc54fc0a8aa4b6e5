package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/config"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/docstore"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/doctype"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/keywords"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/store"
)

// app holds what the commands share. Everything is loaded on first use so
// commands that never touch the database run without one.
type app struct {
	configPath string
	verbose    bool
	logger     *slog.Logger

	cfg        *config.Config
	translator *keywords.Translator
	registry   *doctype.Registry
}

func (a *app) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) keywordTranslator() (*keywords.Translator, error) {
	if a.translator != nil {
		return a.translator, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	t, err := cfg.Translator()
	if err != nil {
		return nil, err
	}
	a.translator = t
	return t, nil
}

func (a *app) documentTypes() (*doctype.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	r, err := doctype.Load(cfg.Registry.Path)
	if err != nil {
		return nil, err
	}
	a.registry = r
	return r, nil
}

func (a *app) client() (*docstore.Client, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	t, err := a.keywordTranslator()
	if err != nil {
		return nil, err
	}
	return docstore.NewWithConfig(docstore.ClientConfig{
		BaseURL:    cfg.DocStore.BaseURL,
		Username:   cfg.DocStore.Username,
		Password:   cfg.DocStore.Password,
		LogUser:    cfg.DocStore.LogUser,
		Translator: t,
		Logger:     a.log(),
	})
}

// ledger opens the document ledger. It returns nil without error when no
// database is configured.
func (a *app) ledger(ctx context.Context) (*store.Ledger, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, nil
	}
	l, err := store.NewWithConfig(ctx, store.LedgerConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		Logger:     a.log(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open document ledger: %w", err)
	}
	return l, nil
}

func (a *app) requireLedger(ctx context.Context) (*store.Ledger, error) {
	l, err := a.ledger(ctx)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("no database configured: set database.url or DATABASE_URL")
	}
	return l, nil
}

// parseKeywordFlags turns name=value arguments into pairs.
func parseKeywordFlags(values []string) ([]keywords.Pair, error) {
	pairs := make([]keywords.Pair, 0, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid keyword %q: expected name=value", v)
		}
		pairs = append(pairs, keywords.P(keywords.Name(name), value))
	}
	return pairs, nil
}

func getProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("documents"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
