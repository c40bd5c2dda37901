package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/muted-image-editor/internal/chat"
	"github.com/fpang/muted-image-editor/internal/cli"
	"github.com/fpang/muted-image-editor/internal/config"
	"github.com/fpang/muted-image-editor/internal/editor"
	"github.com/fpang/muted-image-editor/internal/filehandler"
	"github.com/fpang/muted-image-editor/internal/logging"
	"github.com/fpang/muted-image-editor/internal/preset"
)

// CLI flags
var (
	fileFlag      string
	pickFlag      bool
	presetFlag    string
	intensityFlag int
	outFlag       string
	modelFlag     string
	timeoutFlag   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "muted-cli",
	Short: "Apply muted photo presets from the terminal",
	Long: `Muted CLI applies one of the muted, film-like presets to a photo using a
Gemini image model and writes the result next to the original.

Examples:
  muted-cli presets
  muted-cli apply --file photo.jpg --preset "Coastal Haze"
  muted-cli apply -f photo.png -p "Urban Noir" --intensity 40 -o noir.png
  muted-cli apply --pick -p "Muted Earth"  # Native file dialog
  muted-cli apply -p "Muted Earth"         # Prompts for the file path`,
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the available presets",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		logging.Init()
		printPresets(cmd.OutOrStdout(), preset.Default())
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a preset to an image",
	Args:  cobra.NoArgs,
	Run:   runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Image to edit (png, jpeg or webp)")
	applyCmd.Flags().BoolVar(&pickFlag, "pick", false, "Choose the image with the native file dialog")
	applyCmd.Flags().StringVarP(&presetFlag, "preset", "p", "", "Preset name (see 'muted-cli presets')")
	applyCmd.Flags().IntVarP(&intensityFlag, "intensity", "i", editor.DefaultIntensity, "Effect strength, 0-100; any value other than 100 costs a second model call")
	applyCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Output path (default muted-<name> next to the input)")
	applyCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini image model (default from GEMINI_IMAGE_MODEL or "+chat.DefaultImageModelName+")")
	applyCmd.Flags().DurationVar(&timeoutFlag, "timeout", 3*time.Minute, "Give up after this long")
	applyCmd.MarkFlagRequired("preset")

	rootCmd.AddCommand(presetsCmd, applyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printPresets(w io.Writer, catalog *preset.Catalog) {
	fmt.Fprintln(w, "Available presets:")
	for i, p := range catalog.All() {
		fmt.Fprintf(w, "  %2d. %s\n", i+1, p.Name)
	}
}

func runApply(cmd *cobra.Command, args []string) {
	config.LoadDotEnv()
	logging.Init()

	cfg := config.Load()
	if modelFlag != "" {
		cfg.ImageModel = modelFlag
	}

	path, err := chooseImage()
	if err != nil {
		log.Fatal().Err(err).Msg("No image to edit")
	}

	catalog := preset.Default()
	if _, err := catalog.Get(presetFlag); err != nil {
		log.Fatal().Str("preset", presetFlag).Strs("available", catalog.Names()).Msg("Unknown preset")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeoutFlag)
	defer cancel()

	invoker := cli.InitImageClient(ctx, cfg, false)
	ctrl := editor.New(catalog, invoker, append(cfg.EditorOptions(), editor.WithName("cli"), editor.WithContext(ctx))...)
	defer ctrl.Close()

	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("Muted Image Editor")
	fmt.Println("============================================")
	fmt.Printf("Image:     %s\n", path)
	fmt.Printf("Preset:    %s\n", presetFlag)
	fmt.Printf("Intensity: %d%%\n", editor.ClampIntensity(intensityFlag))
	fmt.Printf("Requests:  %d\n", modelCalls(intensityFlag))
	fmt.Printf("Model:     %s\n", invoker.Model())
	fmt.Println("--------------------------------------------")

	start := time.Now()
	st, err := applyPreset(ctx, ctrl, path, presetFlag, intensityFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Edit failed")
	}

	out := outFlag
	if out == "" {
		out = defaultOutputPath(path, st.Edited.MIMEType)
	}
	if err := os.WriteFile(out, st.Edited.Data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", out).Msg("Failed to write edited image")
	}

	fmt.Printf("Saved %s (%s)\n", out, cli.FormatDurationShort(time.Since(start)))
}

// chooseImage resolves the input image from --file, --pick or a prompt.
func chooseImage() (string, error) {
	path := fileFlag
	switch {
	case path != "":
	case pickFlag:
		picked, err := cli.PickImageFile()
		if err != nil {
			return "", err
		}
		path = picked
	default:
		path = cli.PromptForFile(os.Stdin, os.Stdout)
	}
	if path == "" {
		return "", errors.New("no file given")
	}
	return cli.ResolveImagePath(path)
}

// applyPreset runs one edit through the controller: load the image, select
// the preset, then adjust the intensity if it differs from the default.
// Every step waits for the session to settle and fails on a surfaced error.
func applyPreset(ctx context.Context, ctrl *editor.Controller, path, presetName string, intensity int) (editor.State, error) {
	ctrl.IngestFile(path)
	st, err := settle(ctx, ctrl)
	if err != nil {
		return st, err
	}

	if _, err := ctrl.SelectPresetByName(presetName); err != nil {
		return st, err
	}
	if st, err = settle(ctx, ctrl); err != nil {
		return st, err
	}

	if modelCalls(intensity) > 1 {
		ctrl.AdjustIntensity(intensity)
		if st, err = settle(ctx, ctrl); err != nil {
			return st, err
		}
	}

	if st.Edited == nil {
		return st, errors.New("no edited image was produced")
	}
	return st, nil
}

// modelCalls is how many edit requests applyPreset sends: the preset always
// applies at full strength first.
func modelCalls(intensity int) int {
	if editor.ClampIntensity(intensity) == editor.DefaultIntensity {
		return 1
	}
	return 2
}

func settle(ctx context.Context, ctrl *editor.Controller) (editor.State, error) {
	st, err := ctrl.Settled(ctx)
	if err != nil {
		return st, err
	}
	if st.Err != "" {
		return st, errors.New(st.Err)
	}
	return st, nil
}

// defaultOutputPath places "muted-<base><ext>" next to the input.
func defaultOutputPath(input, mimeType string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), "muted-"+base+filehandler.ExtensionForMIMEType(mimeType))
}
