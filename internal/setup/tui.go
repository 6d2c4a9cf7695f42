// Package setup provides the interactive terminal wizard that writes a
// simulator config.yaml.
package setup

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bourse/config"
	"github.com/vadiminshakov/bourse/internal/domain"
	"gopkg.in/yaml.v3"
)

var (
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	doneStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1)
)

type yamlConfig struct {
	Instruments  []yamlInstrument `yaml:"instruments"`
	StartingCash string           `yaml:"starting_cash"`
	Speed        float64          `yaml:"speed"`
	OpenAtStart  bool             `yaml:"open_at_start"`
	WebAddr      string           `yaml:"web_addr"`
}

type yamlInstrument struct {
	Name       string `yaml:"name"`
	Ticker     string `yaml:"ticker"`
	Sector     string `yaml:"sector"`
	Price      string `yaml:"price"`
	Volatility string `yaml:"volatility"`
}

// RunTUI launches the terminal configuration wizard and writes config.yaml.
func RunTUI() error {
	fmt.Println(headerStyle.Render("bourse: exchange simulator setup"))

	var (
		universe   string
		cashStr    string
		speedStr   string
		webAddr    string
		openAtOnce bool
		confirm    bool
	)

	// defaults
	universe = "default"
	cashStr = "10000"
	speedStr = "1.0"
	webAddr = "127.0.0.1:8080"
	openAtOnce = true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Instrument universe").
				Options(
					huh.NewOption("Default (8 instruments, 6 sectors)", "default"),
					huh.NewOption("Technology only", "tech"),
				).
				Value(&universe),
			huh.NewInput().
				Title("Starting cash").
				Value(&cashStr).
				Validate(func(s string) error {
					cash, err := decimal.NewFromString(s)
					if err != nil || cash.IsNegative() {
						return fmt.Errorf("enter a non-negative amount")
					}
					return nil
				}),
			huh.NewInput().
				Title(fmt.Sprintf("Simulation speed (%.2f-%.1f)", domain.MinSpeed, domain.MaxSpeed)).
				Value(&speedStr),
			huh.NewInput().
				Title("Web server address").
				Value(&webAddr),
			huh.NewConfirm().
				Title("Open the exchange immediately?").
				Value(&openAtOnce),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Write config.yaml?").
				Value(&confirm),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}
	if !confirm {
		fmt.Println("aborted, nothing written")
		return nil
	}

	var speed float64
	if _, err := fmt.Sscanf(speedStr, "%f", &speed); err != nil {
		speed = 1.0
	}

	instruments := config.DefaultUniverse()
	if universe == "tech" {
		var tech []config.Instrument
		for _, ins := range instruments {
			if ins.Sector == "Technology" {
				tech = append(tech, ins)
			}
		}
		instruments = tech
	}

	out := yamlConfig{
		StartingCash: cashStr,
		Speed:        domain.ClampSpeed(speed),
		OpenAtStart:  openAtOnce,
		WebAddr:      webAddr,
	}
	for _, ins := range instruments {
		out.Instruments = append(out.Instruments, yamlInstrument{
			Name:       ins.Name,
			Ticker:     ins.Ticker,
			Sector:     ins.Sector,
			Price:      ins.Price.String(),
			Volatility: ins.Volatility.String(),
		})
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	if err := os.WriteFile("config.yaml", data, 0o644); err != nil {
		return err
	}

	fmt.Println(doneStyle.Render("config.yaml written, start with: bourse --config config.yaml"))
	return nil
}
