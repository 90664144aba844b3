package pipeline

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/bitmark-inc/covid19-uk/aggregate"
	"github.com/bitmark-inc/covid19-uk/consts"
	"github.com/bitmark-inc/covid19-uk/schema"
)

var (
	ErrInvalidConfig = fmt.Errorf("invalid pipeline config")
)

// Config - datasets to ingest and tables derived from them
type Config struct {
	Datasets        []DatasetConfig `mapstructure:"datasets"`
	Derived         []DerivedConfig `mapstructure:"derived"`
	Concurrent      bool            `mapstructure:"concurrent"`
	CoordinatesFile string          `mapstructure:"coordinates_file"`
}

// DatasetConfig - one ingested table
type DatasetConfig struct {
	Name     string         `mapstructure:"name"`
	AreaType string         `mapstructure:"area_type"`
	LatestBy string         `mapstructure:"latest_by"`
	Fields   []schema.Field `mapstructure:"fields"`
}

// DerivedConfig - one table computed from an ingested or derived table. Exactly one of
// Rolling, Coordinates and Rates is set.
type DerivedConfig struct {
	Name        string             `mapstructure:"name"`
	From        string             `mapstructure:"from"`
	Rolling     *RollingConfig     `mapstructure:"rolling"`
	Coordinates *CoordinatesConfig `mapstructure:"coordinates"`
	Rates       *RatesConfig       `mapstructure:"rates"`
}

type RollingConfig struct {
	Window  int      `mapstructure:"window"`
	Columns []string `mapstructure:"columns"`
	Missing string   `mapstructure:"missing"`
}

type CoordinatesConfig struct {
	Policy string `mapstructure:"policy"`
}

type RatesConfig struct {
	Metric string `mapstructure:"metric"`
	Rate   string `mapstructure:"rate"`
}

// Query - api query of a dataset
func (d DatasetConfig) Query() (schema.Query, error) {
	t, err := schema.ParseAreaType(d.AreaType)
	if nil != err {
		return schema.Query{}, err
	}
	return schema.Query{AreaType: t, Fields: d.Fields, LatestBy: d.LatestBy}, nil
}

// Validate - names are unique, every derived table reads a table declared before it
// and every policy is known
func (c Config) Validate() error {
	names := make(map[string]struct{})
	declare := func(name string) error {
		if name == "" {
			return fmt.Errorf("%w: table without name", ErrInvalidConfig)
		}
		if _, ok := names[name]; ok {
			return fmt.Errorf("%w: duplicate table %q", ErrInvalidConfig, name)
		}
		names[name] = struct{}{}
		return nil
	}

	for _, d := range c.Datasets {
		if err := declare(d.Name); nil != err {
			return err
		}
		if len(d.Fields) == 0 {
			return fmt.Errorf("%w: dataset %q has no fields", ErrInvalidConfig, d.Name)
		}
		if _, err := d.Query(); nil != err {
			return fmt.Errorf("%w: dataset %q: %s", ErrInvalidConfig, d.Name, err)
		}
	}

	for _, d := range c.Derived {
		if _, ok := names[d.From]; !ok {
			return fmt.Errorf("%w: %q derives from unknown table %q", ErrInvalidConfig, d.Name, d.From)
		}
		if err := declare(d.Name); nil != err {
			return err
		}

		steps := 0
		if d.Rolling != nil {
			steps++
			if _, err := aggregate.ParsePolicy(d.Rolling.Missing); nil != err {
				return fmt.Errorf("%w: %q: %s", ErrInvalidConfig, d.Name, err)
			}
			if d.Rolling.Window < 0 {
				return fmt.Errorf("%w: %q: %s", ErrInvalidConfig, d.Name, aggregate.ErrInvalidWindow)
			}
		}
		if d.Coordinates != nil {
			steps++
			if _, err := aggregate.ParsePolicy(d.Coordinates.Policy); nil != err {
				return fmt.Errorf("%w: %q: %s", ErrInvalidConfig, d.Name, err)
			}
		}
		if d.Rates != nil {
			steps++
			if d.Rates.Metric == "" || d.Rates.Rate == "" {
				return fmt.Errorf("%w: %q: rates need a metric and a rate column", ErrInvalidConfig, d.Name)
			}
		}
		if steps != 1 {
			return fmt.Errorf("%w: %q must set exactly one of rolling, coordinates and rates", ErrInvalidConfig, d.Name)
		}
	}

	return nil
}

// DefaultConfig - the national daily series, the local authority snapshots and the
// tables derived from them
func DefaultConfig() Config {
	return Config{
		Datasets: []DatasetConfig{
			{
				Name:     "national-daily",
				AreaType: string(schema.AreaNation),
				Fields: []schema.Field{
					{Name: "Date", Source: schema.FieldDate},
					{Name: "Area", Source: schema.FieldAreaName},
					{Name: "Deaths", Source: "newDeaths28DaysByPublishDate"},
					{Name: "Cases", Source: "newCasesByPublishDate"},
					{Name: "Tests", Source: "newTestsByPublishDate"},
				},
			},
			{
				Name:     "ltla-latest-cumulative",
				AreaType: string(schema.AreaLTLA),
				LatestBy: consts.LatestByNewCases,
				Fields: []schema.Field{
					{Name: "Area", Source: schema.FieldAreaName},
					{Name: "Cases", Source: "cumCasesByPublishDate"},
					{Name: "Rate", Source: "cumCasesByPublishDateRate"},
				},
			},
			{
				Name:     "ltla-latest-daily",
				AreaType: string(schema.AreaLTLA),
				LatestBy: consts.LatestByNewCases,
				Fields: []schema.Field{
					{Name: "Area", Source: schema.FieldAreaName},
					{Name: "Cases", Source: "newCasesByPublishDate"},
				},
			},
		},
		Derived: []DerivedConfig{
			{
				Name: "national-7-day-average",
				From: "national-daily",
				Rolling: &RollingConfig{
					Window:  consts.DefaultRollingWindow,
					Columns: []string{"Deaths", "Cases", "Tests"},
				},
			},
			{
				Name:  "ltla-latest-rate",
				From:  "ltla-latest-cumulative",
				Rates: &RatesConfig{Metric: "Cases", Rate: "Rate"},
			},
			{
				Name:        "ltla-latest-rate-map",
				From:        "ltla-latest-rate",
				Coordinates: &CoordinatesConfig{Policy: string(aggregate.PolicySkip)},
			},
		},
	}
}

// ConfigFromViper - pipeline config under the "pipeline" key, the default tables when no
// dataset is configured
func ConfigFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if v.IsSet("pipeline.datasets") {
		cfg = Config{}
		if err := v.UnmarshalKey("pipeline", &cfg); nil != err {
			return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
		}
	}

	cfg.Concurrent = v.GetBool("pipeline.concurrent")
	if file := v.GetString("coordinates.file"); file != "" {
		cfg.CoordinatesFile = file
	}

	if err := cfg.Validate(); nil != err {
		return Config{}, err
	}
	return cfg, nil
}
