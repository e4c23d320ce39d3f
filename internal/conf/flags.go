package conf

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const viperKeyAnnotation = "braintumor_settings_key"

// AnnotateFlag records the settings key that flag name overrides.
// Several commands may annotate flags for the same key; only the running
// command's flags are bound by BindFlags.
func AnnotateFlag(flags *pflag.FlagSet, name, key string) error {
	return flags.SetAnnotation(name, viperKeyAnnotation, []string{key})
}

// BindFlags binds every annotated flag in flags into viper. Call it before
// Load so command line values take precedence.
func BindFlags(flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[viperKeyAnnotation]
		if err != nil || len(keys) == 0 {
			return
		}
		if bindErr := viper.BindPFlag(keys[0], f); bindErr != nil {
			err = fmt.Errorf("error binding flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}
