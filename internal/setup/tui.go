package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/folio/config"
)

// ConfigFile file written by the wizard.
const ConfigFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers values collected by the wizard.
type Answers struct {
	ListenAddr  string
	Driver      string
	DataDir     string
	DSN         string
	Providers   []string
	AssetClass  string
	Schedules   string
	Timezone    string
	Concurrency string
	Brokers     string
}

func defaultAnswers() Answers {
	return Answers{
		ListenAddr:  ":8080",
		Driver:      config.DriverWAL,
		DataDir:     "data",
		Providers:   []string{config.ProviderBrapi},
		AssetClass:  "EQUITY",
		Schedules:   "0 10 * * 1-5; 0 15 * * 1-5; 30 17 * * 1-5",
		Timezone:    "America/Sao_Paulo",
		Concurrency: "4",
	}
}

func step(title string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render("FOLIO CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(title))
}

// RunTUI launches the terminal configuration wizard and writes ConfigFile.
func RunTUI() (string, error) {
	a := defaultAnswers()
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("FOLIO CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's set up your portfolio ledger.\n"))

	// storage
	fmt.Println(stepStyle.Render("STEP 1: STORAGE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should the ledger live?").
				Options(
					huh.NewOption("Write-ahead log (embedded)", config.DriverWAL),
					huh.NewOption("SQLite", config.DriverSQLite),
					huh.NewOption("PostgreSQL", config.DriverPostgres),
					huh.NewOption("Memory (lost on exit)", config.DriverMemory),
				).
				Value(&a.Driver),
		),
	).Run()
	if err != nil {
		return "", err
	}

	switch a.Driver {
	case config.DriverWAL, config.DriverSQLite:
		step("STEP 2: DATA DIRECTORY")
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Data directory").
					Value(&a.DataDir).
					Validate(notEmpty("data directory")),
			),
		).Run()
	case config.DriverPostgres:
		step("STEP 2: DATABASE")
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("PostgreSQL DSN").
					Description("Leave empty to read FOLIO_POSTGRES_DSN at startup").
					Value(&a.DSN),
			),
		).Run()
	}
	if err != nil {
		return "", err
	}

	// quotes
	step("STEP 3: QUOTE PROVIDERS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Providers, tried in order").
				Options(
					huh.NewOption("brapi.dev (B3 equities, funds)", config.ProviderBrapi).Selected(true),
					huh.NewOption("Binance spot", config.ProviderBinance),
					huh.NewOption("Bybit spot", config.ProviderBybit),
					huh.NewOption("Hyperliquid mids (no keys)", config.ProviderHyperliquid),
				).
				Value(&a.Providers).
				Validate(func(p []string) error {
					if len(p) == 0 {
						return fmt.Errorf("select at least one provider")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Asset class of newly discovered instruments").
				Options(
					huh.NewOption("Equity", "EQUITY"),
					huh.NewOption("Fund", "FUND"),
					huh.NewOption("REIT", "REIT"),
					huh.NewOption("ETF", "ETF"),
					huh.NewOption("Crypto", "CRYPTO"),
				).
				Value(&a.AssetClass),
		),
	).Run()
	if err != nil {
		return "", err
	}

	// sync
	step("STEP 4: QUOTE SYNC")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Cron schedules").
				Description("Separated by ';' (e.g. 0 10 * * 1-5; 30 17 * * 1-5)").
				Value(&a.Schedules).
				Validate(validateSchedules),
			huh.NewInput().
				Title("Timezone").
				Value(&a.Timezone).
				Validate(func(s string) error {
					_, err := time.LoadLocation(s)
					return err
				}),
			huh.NewInput().
				Title("Parallel fetches").
				Value(&a.Concurrency).
				Validate(validatePositive),
		),
	).Run()
	if err != nil {
		return "", err
	}

	// server
	step("STEP 5: SERVER")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("HTTP listen address").
				Value(&a.ListenAddr).
				Validate(notEmpty("listen address")),
			huh.NewInput().
				Title("Kafka brokers").
				Description("Comma separated, leave empty to disable").
				Value(&a.Brokers),
		),
	).Run()
	if err != nil {
		return "", err
	}

	// confirmation
	step("FINAL CONFIRMATION")

	summary := fmt.Sprintf(
		"Storage: %s\nProviders: %s\nSchedules: %s (%s)\nListen: %s\n",
		a.Driver, strings.Join(a.Providers, ", "), a.Schedules, a.Timezone, a.ListenAddr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return "", err
	}

	if !confirm {
		return "", fmt.Errorf("setup cancelled by user")
	}

	data, err := yaml.Marshal(a.ConfigTmp())
	if err != nil {
		return "", fmt.Errorf("failed to generate yaml: %w", err)
	}

	if err := os.WriteFile(ConfigFile, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting folio...", ConfigFile)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return ConfigFile, nil
}

// ConfigTmp converts the answers into the YAML document.
func (a Answers) ConfigTmp() config.ConfigTmp {
	concurrency, _ := strconv.Atoi(a.Concurrency)
	cfg := config.ConfigTmp{
		ListenAddr: a.ListenAddr,
		Storage: config.StorageTmp{
			Driver: a.Driver,
			DSN:    a.DSN,
		},
		Quotes: config.QuotesTmp{
			Providers:         a.Providers,
			DefaultAssetClass: a.AssetClass,
		},
		Sync: config.SyncTmp{
			Schedules:   splitList(a.Schedules, ";"),
			Timezone:    a.Timezone,
			Concurrency: concurrency,
		},
		Events: config.EventsTmp{
			KafkaBrokers: splitList(a.Brokers, ","),
		},
	}
	if a.Driver == config.DriverWAL || a.Driver == config.DriverSQLite {
		cfg.Storage.Dir = a.DataDir
	}

	return cfg
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateSchedules(s string) error {
	specs := splitList(s, ";")
	if len(specs) == 0 {
		return fmt.Errorf("at least one schedule is required")
	}
	for _, spec := range specs {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", spec, err)
		}
	}
	return nil
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}
