package archiver

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/m-lab/esmond-archiver/internal/retry"
	"github.com/m-lab/esmond-archiver/internal/summary"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

// Config is the archiver configuration block sent along with each request.
type Config struct {
	Schema    int    `mapstructure:"schema" validate:"omitempty,min=1,max=2"`
	URL       string `mapstructure:"url" validate:"required,url"`
	AuthToken string `mapstructure:"_auth-token"`
	VerifySSL bool   `mapstructure:"verify-ssl"`
	Bind      string `mapstructure:"bind" validate:"omitempty,ip|hostname"`

	RetryPolicy retry.Policy `mapstructure:"retry-policy"`
	// Summaries replaces the default summary catalog when set.
	Summaries        map[string]any `mapstructure:"summaries"`
	MeasurementAgent string         `mapstructure:"measurement-agent" validate:"omitempty,ip|hostname"`

	DataFormattingPolicy spec.FormattingPolicy `mapstructure:"data-formatting-policy" validate:"omitempty,oneof=prefer-mapped mapped-and-raw mapped-only raw-only"`

	catalog summary.Catalog
}

// Catalog returns the summary catalog override, or nil if there is none.
func (c *Config) Catalog() summary.Catalog {
	return c.catalog
}

var validate = validator.New()

// DecodeConfig decodes and validates an archiver configuration block.
func DecodeConfig(data map[string]any) (*Config, error) {
	cfg := &Config{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			retry.DurationHook(),
			formattingPolicyHook(),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(data); err != nil {
		return nil, fmt.Errorf("invalid archiver data: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, validationError(err)
	}
	if err := cfg.RetryPolicy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Summaries != nil {
		if cfg.catalog, err = summary.FromMap(cfg.Summaries); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Validate reports whether data is a usable archiver configuration block.
func Validate(data map[string]any) error {
	_, err := DecodeConfig(data)
	return err
}

func formattingPolicyHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(spec.FormattingPolicy("")) {
			return data, nil
		}
		return spec.FormattingPolicy(strings.ToLower(fmt.Sprint(data))), nil
	}
}

// validationError turns validator errors into a single readable error.
func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Namespace()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s has invalid value %v: %s", fe.Namespace(), fe.Value(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid archiver data: %s", strings.Join(msgs, "; "))
}
