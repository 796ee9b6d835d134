package summarize

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Options shape the generated explanation.
type Options struct {
	Tier   string `json:"tier" validate:"oneof=tier1 tier2"`
	Format string `json:"format" validate:"oneof=text html"`
	Length string `json:"length" validate:"oneof=short medium long"`
}

var validate = validator.New()

// withDefaults fills empty fields with tier1 / text / short.
func (o Options) withDefaults() Options {
	if o.Tier == "" {
		o.Tier = "tier1"
	}
	if o.Format == "" {
		o.Format = "text"
	}
	if o.Length == "" {
		o.Length = "short"
	}
	return o
}

// Validate applies defaults and checks the enumerations.
func (o Options) Validate() (Options, error) {
	o = o.withDefaults()
	if err := validate.Struct(o); err != nil {
		return o, fmt.Errorf("invalid summarizer options: %w", err)
	}
	return o, nil
}

// HTML reports whether the output format is html.
func (o Options) HTML() bool {
	return o.Format == "html"
}
