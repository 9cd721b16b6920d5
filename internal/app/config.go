package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/verdenexo/sales-engine/internal/domain/commission"
	"github.com/verdenexo/sales-engine/internal/domain/invoice"
)

// Config holds the complete scheduler configuration, loadable from
// environment variables (SALES_ prefix), flags, or YAML config files.
type Config struct {
	OpsAddr     string `default:"0.0.0.0:8081" usage:"Ops server listen address (health probes)" flag:"ops-addr"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SALES_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ExportDir   string `default:"./exports" usage:"Directory for report artifacts" flag:"export-dir"`
	Company     CompanyConfig
	Commission  CommissionConfig
	Scheduler   SchedulerConfig
	Graceful    GracefulConfig
}

// CompanyConfig is the issuer snapshot stamped onto every invoice.
type CompanyConfig struct {
	Name    string `default:"VerdeNexo S.A.S." usage:"Issuing company name"`
	TaxID   string `default:"901.234.567-8" usage:"Issuing company tax ID" flag:"tax-id"`
	Address string `default:"Calle 123 #45-67, Bogotá, Colombia" usage:"Issuing company address"`
	Phone   string `default:"+57 300 123 4567" usage:"Issuing company phone"`
	Email   string `default:"facturacion@verdenexo.com" usage:"Issuing company billing email"`
}

// CommissionConfig sets the formula applied when an order carries no
// explicit commission agreement.
type CommissionConfig struct {
	DefaultType string `default:"percentage" usage:"Default commission type (percentage, fixed, mixed)" flag:"default-type"`
	Percentage  string `default:"5" usage:"Default commission percentage rate"`
	FixedAmount string `default:"0" usage:"Default fixed commission amount" flag:"fixed-amount"`
	ApplyBoth   bool   `default:"false" usage:"Sum fixed and percentage for mixed commissions" flag:"apply-both"`
}

// SchedulerConfig controls the periodic report generation loop.
type SchedulerConfig struct {
	Interval time.Duration `default:"24h" usage:"How often to generate the periodic report"`
	Lookback time.Duration `default:"24h" usage:"Period each scheduled report covers, ending now"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads the daemon configuration from command-line flags,
// environment variables, and YAML config files, and validates it.
func LoadConfig() (*Config, error) {
	cfg, err := load(false)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SALES_DATABASE_URL or DATABASE_URL")
	}
	return cfg, nil
}

// LoadEnvConfig loads configuration from environment variables and YAML
// config files only. One-shot CLIs own their flag sets, so command-line
// flags are skipped and the caller supplies whatever the environment
// does not.
func LoadEnvConfig() (*Config, error) {
	return load(true)
}

func load(skipFlags bool) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: skipFlags,
		EnvPrefix: "SALES",
		Files:     []string{"config.yaml", "/etc/sales-engine/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if _, _, err := cfg.Commission.Parse(); err != nil {
		return nil, errors.Wrap(err, "commission defaults")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SALES_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.OpsAddr == "0.0.0.0:8081" {
		c.OpsAddr = "0.0.0.0:" + port
	}
}

// CompanyInfo converts the config section into the invoice snapshot type.
func (c CompanyConfig) CompanyInfo() invoice.CompanyInfo {
	return invoice.CompanyInfo{
		Name:    c.Name,
		TaxID:   c.TaxID,
		Address: c.Address,
		Phone:   c.Phone,
		Email:   c.Email,
	}
}

// Parse converts the config section into the commission domain types.
func (c CommissionConfig) Parse() (commission.Type, commission.Config, error) {
	rate, err := decimal.NewFromString(c.Percentage)
	if err != nil {
		return "", commission.Config{}, errors.Wrapf(err, "parse percentage %q", c.Percentage)
	}
	fixed, err := decimal.NewFromString(c.FixedAmount)
	if err != nil {
		return "", commission.Config{}, errors.Wrapf(err, "parse fixed amount %q", c.FixedAmount)
	}

	t := commission.Type(c.DefaultType)
	switch t {
	case commission.TypePercentage, commission.TypeFixed, commission.TypeMixed:
	default:
		return "", commission.Config{}, errors.Errorf("unknown commission type %q", c.DefaultType)
	}

	return t, commission.Config{
		Percentage:  rate,
		FixedAmount: fixed,
		ApplyBoth:   c.ApplyBoth,
	}, nil
}
