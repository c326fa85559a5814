// Package bootstrap seeds the store from a YAML file on first start: a
// local user, a demo account and any declared templates and bots.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bot-core/internal/account"
	"bot-core/internal/connector"
	"bot-core/internal/strategy"
	"bot-core/internal/template"
	"bot-core/pkg/logger"
	"bot-core/pkg/store"
)

// File is the top-level YAML structure.
type File struct {
	Templates []TemplateSeed `yaml:"templates"`
	GridBots  []GridSeed     `yaml:"gridBots"`
	DCABots   []DCASeed      `yaml:"dcaBots"`
}

// TemplateSeed declares one order template.
type TemplateSeed struct {
	Name      string   `yaml:"name"`
	Pair      string   `yaml:"pair"`
	Pairs     []string `yaml:"pairs"`
	Direction string   `yaml:"direction"`
	Size      float64  `yaml:"size"`
	SizeMode  string   `yaml:"sizeMode"`
	Leverage  int      `yaml:"leverage"`
}

// GridSeed declares one grid bot bound by template name.
type GridSeed struct {
	Name     string  `yaml:"name"`
	Template string  `yaml:"template"`
	Pair     string  `yaml:"pair"`
	Lower    float64 `yaml:"lower"`
	Upper    float64 `yaml:"upper"`
	Lines    int     `yaml:"lines"`
	Spacing  string  `yaml:"spacing"`
}

// DCASeed declares one DCA bot bound by template name.
type DCASeed struct {
	Name          string  `yaml:"name"`
	Template      string  `yaml:"template"`
	Pair          string  `yaml:"pair"`
	Direction     string  `yaml:"direction"`
	TakeProfitPct float64 `yaml:"takeProfitPct"`
	Steps         []struct {
		DeviationPct float64 `yaml:"deviationPct"`
		Size         float64 `yaml:"size"`
	} `yaml:"steps"`
}

// Load parses the seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// Services collects everything seeding needs.
type Services struct {
	Store     *store.Store
	Accounts  *account.Service
	Templates *template.Service
	Grid      *strategy.GridService
	DCA       *strategy.DCAService
}

// Apply seeds the store for userID. It is a no-op when the user already has
// templates, so restarts do not duplicate records.
func Apply(ctx context.Context, svc Services, userID, path string) error {
	if path == "" {
		return nil
	}
	existing, err := svc.Templates.List(ctx, userID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	f, err := Load(path)
	if err != nil {
		return err
	}

	acc, err := svc.Accounts.Create(ctx, userID, "demo", "binance", connector.ModeDemo, "", "")
	if err != nil {
		return err
	}

	byName := make(map[string]*template.Template, len(f.Templates))
	for _, ts := range f.Templates {
		tmpl, err := svc.Templates.Create(ctx, &template.Template{
			UserID:    userID,
			Name:      ts.Name,
			Pair:      ts.Pair,
			Pairs:     ts.Pairs,
			Direction: ts.Direction,
			Size:      ts.Size,
			SizeMode:  template.SizeMode(ts.SizeMode),
			Leverage:  ts.Leverage,
		})
		if err != nil {
			return fmt.Errorf("seed template %q: %w", ts.Name, err)
		}
		byName[ts.Name] = tmpl
	}

	resolve := func(name string) (string, error) {
		tmpl, ok := byName[name]
		if !ok {
			return "", fmt.Errorf("bot references unknown template %q", name)
		}
		return tmpl.ID, nil
	}

	for _, gs := range f.GridBots {
		tmplID, err := resolve(gs.Template)
		if err != nil {
			return err
		}
		_, err = svc.Grid.Create(ctx, &strategy.GridBot{
			BotBase: strategy.BotBase{
				UserID: userID, AccountID: acc.ID,
				Name: gs.Name, Pair: gs.Pair, TemplateID: tmplID,
			},
			Lower: gs.Lower, Upper: gs.Upper, Lines: gs.Lines, Spacing: gs.Spacing,
		})
		if err != nil {
			return fmt.Errorf("seed grid bot %q: %w", gs.Name, err)
		}
	}

	for _, ds := range f.DCABots {
		tmplID, err := resolve(ds.Template)
		if err != nil {
			return err
		}
		steps := make([]strategy.DCAStep, len(ds.Steps))
		for i, st := range ds.Steps {
			steps[i] = strategy.DCAStep{DeviationPct: st.DeviationPct, Size: st.Size}
		}
		_, err = svc.DCA.Create(ctx, &strategy.DCABot{
			BotBase: strategy.BotBase{
				UserID: userID, AccountID: acc.ID,
				Name: ds.Name, Pair: ds.Pair, TemplateID: tmplID,
			},
			Direction:     ds.Direction,
			Steps:         steps,
			TakeProfitPct: ds.TakeProfitPct,
		})
		if err != nil {
			return fmt.Errorf("seed dca bot %q: %w", ds.Name, err)
		}
	}

	logger.S().Infow("bootstrap applied",
		"templates", len(f.Templates), "gridBots", len(f.GridBots), "dcaBots", len(f.DCABots))
	return nil
}
