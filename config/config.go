// Package config loads the simulator configuration from YAML or CLI flags.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bourse/internal/domain"
	"gopkg.in/yaml.v3"
)

// Instrument describes one entry of the initial instrument universe.
type Instrument struct {
	Name       string
	Ticker     string
	Sector     string
	Price      decimal.Decimal
	Volatility decimal.Decimal
}

// Config is the resolved simulator configuration.
type Config struct {
	Instruments  []Instrument
	StartingCash decimal.Decimal
	Speed        float64
	OpenAtStart  bool
	WebAddr      string
	JournalDir   string
	Setup        bool
}

type instrumentTmp struct {
	Name       string `yaml:"name"`
	Ticker     string `yaml:"ticker"`
	Sector     string `yaml:"sector"`
	Price      string `yaml:"price"`
	Volatility string `yaml:"volatility"`
}

type configTmp struct {
	Instruments  []instrumentTmp `yaml:"instruments"`
	StartingCash string          `yaml:"starting_cash,omitempty"`
	Speed        float64         `yaml:"speed,omitempty"`
	OpenAtStart  *bool           `yaml:"open_at_start,omitempty"`
	WebAddr      string          `yaml:"web_addr,omitempty"`
	JournalDir   string          `yaml:"journal_dir,omitempty"`
}

// Get resolves configuration from the --config YAML file when provided,
// otherwise from flags and built-in defaults.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	setup := flag.Bool("setup", false, "run the interactive configuration wizard")
	cash := flag.String("cash", "10000", "starting cash")
	speed := flag.Float64("speed", 1.0, "simulation speed (0.25-10)")
	webAddr := flag.String("web", "127.0.0.1:8080", "web server listen address")
	journalDir := flag.String("journal", "./wal/journal", "event journal directory")
	flag.Parse()

	if *configPath != "" {
		cfg, err := getYaml(*configPath)
		cfg.Setup = *setup
		return cfg, err
	}

	startingCash, err := decimal.NewFromString(*cash)
	if err != nil {
		return Config{}, fmt.Errorf("invalid --cash provided, --cash=%s", *cash)
	}
	if startingCash.IsNegative() {
		return Config{}, fmt.Errorf("invalid --cash provided, must not be negative")
	}

	return Config{
		Instruments:  DefaultUniverse(),
		StartingCash: startingCash,
		Speed:        domain.ClampSpeed(*speed),
		OpenAtStart:  true,
		WebAddr:      *webAddr,
		JournalDir:   *journalDir,
		Setup:        *setup,
	}, nil
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Speed:       1.0,
		OpenAtStart: true,
		WebAddr:     "127.0.0.1:8080",
		JournalDir:  "./wal/journal",
	}

	if len(tmp.Instruments) == 0 {
		cfg.Instruments = DefaultUniverse()
	}
	for _, ins := range tmp.Instruments {
		if ins.Ticker == "" {
			return Config{}, fmt.Errorf("instrument entry is missing 'ticker'")
		}
		price, err := decimal.NewFromString(ins.Price)
		if err != nil || !price.IsPositive() {
			return Config{}, fmt.Errorf("incorrect 'price' for instrument %s: %s", ins.Ticker, ins.Price)
		}
		volatility := decimal.NewFromInt(1)
		if ins.Volatility != "" {
			volatility, err = decimal.NewFromString(ins.Volatility)
			if err != nil || !volatility.IsPositive() {
				return Config{}, fmt.Errorf("incorrect 'volatility' for instrument %s: %s", ins.Ticker, ins.Volatility)
			}
		}
		name := ins.Name
		if name == "" {
			name = ins.Ticker
		}
		cfg.Instruments = append(cfg.Instruments, Instrument{
			Name:       name,
			Ticker:     ins.Ticker,
			Sector:     ins.Sector,
			Price:      price,
			Volatility: volatility,
		})
	}

	cfg.StartingCash = decimal.NewFromInt(10000)
	if tmp.StartingCash != "" {
		cash, err := decimal.NewFromString(tmp.StartingCash)
		if err != nil || cash.IsNegative() {
			return Config{}, fmt.Errorf("incorrect 'starting_cash' param in yaml config: %s", tmp.StartingCash)
		}
		cfg.StartingCash = cash
	}
	if tmp.Speed != 0 {
		cfg.Speed = domain.ClampSpeed(tmp.Speed)
	}
	if tmp.OpenAtStart != nil {
		cfg.OpenAtStart = *tmp.OpenAtStart
	}
	if tmp.WebAddr != "" {
		cfg.WebAddr = tmp.WebAddr
	}
	if tmp.JournalDir != "" {
		cfg.JournalDir = tmp.JournalDir
	}

	return cfg, nil
}

// DefaultUniverse is the built-in instrument list used when no config file
// is supplied.
func DefaultUniverse() []Instrument {
	mk := func(name, ticker, sector string, price, volatility float64) Instrument {
		return Instrument{
			Name:       name,
			Ticker:     ticker,
			Sector:     sector,
			Price:      decimal.NewFromFloat(price),
			Volatility: decimal.NewFromFloat(volatility),
		}
	}
	return []Instrument{
		mk("Northbridge Systems", "NBS", "Technology", 125.00, 1.2),
		mk("Argo Energy", "ARGO", "Energy", 64.50, 1.5),
		mk("Helix Biolabs", "HLX", "Healthcare", 210.75, 1.8),
		mk("Veridian Bank", "VRD", "Finance", 48.20, 0.8),
		mk("Pacific Materials", "PMC", "Industrials", 91.30, 1.0),
		mk("Kestrel Retail", "KSTL", "Consumer", 37.85, 1.1),
		mk("Orion Semiconductors", "ORN", "Technology", 156.40, 2.0),
		mk("Delta Logistics", "DLT", "Industrials", 72.60, 0.9),
	}
}
