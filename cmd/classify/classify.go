// Package classify provides the classify command for single images.
package classify

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mriscan/braintumor-go/internal/classifier"
	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/imaging"
)

// Command creates the classify command.
func Command(settings *conf.Settings) *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:   "classify [image]",
		Short: "Classify a single MRI image",
		Long:  "Run the model over a local image and print the predicted class and its confidence. Nothing is stored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model := classifier.Load(&settings.Model)
			defer model.Close()
			return classifyImage(cmd.Context(), cmd.OutOrStdout(), model, args[0], showAll)
		},
	}

	cmd.Flags().BoolVarP(&showAll, "all", "a", false, "Print the probability of every class")
	cmd.Flags().String("model", "", "Path to the .tflite or .onnx model")
	if err := conf.AnnotateFlag(cmd.Flags(), "model", "model.path"); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// classifyImage preprocesses path and prints "<label>\t<confidence>".
func classifyImage(ctx context.Context, w io.Writer, model *classifier.Handle, path string, showAll bool) error {
	if !model.Loaded() {
		return classifier.ErrModelNotLoaded
	}

	tensor, err := imaging.Preprocess(path, model.ImageSize())
	if err != nil {
		return errors.New(err).
			Component("classify").
			FileContext(path, 0).
			Build()
	}

	result, err := model.Classify(ctx, tensor)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s\t%.2f%%\n", result.Label, result.Confidence*100)
	if showAll {
		for i, class := range model.Classes() {
			fmt.Fprintf(w, "  %-20s %6.2f%%\n", class, result.Probabilities[i]*100)
		}
	}
	return nil
}
