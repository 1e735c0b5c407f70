package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lithammer/dedent"
	"github.com/raine/ecosort-bot/internal/config"
	"github.com/raine/ecosort-bot/internal/llm"
	"github.com/raine/ecosort-bot/internal/metrics"
	"github.com/raine/ecosort-bot/internal/scan"
	"github.com/raine/ecosort-bot/internal/waste"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errSomeFailed = errors.New("one or more images could not be classified")

var (
	jsonOutput bool
	modelFlag  string
)

var httpClient = resty.New().SetTimeout(30 * time.Second)

var rootCmd = &cobra.Command{
	Use:   "classify <path-or-url>...",
	Short: "Classify photos of waste items into disposal bins",
	Long: strings.TrimSpace(dedent.Dedent(`
		Classify one or more photos of waste items. Each argument is a local
		image file or an http(s) URL. Images are classified one at a time.

		Requires GEMINI_API_KEY (environment or config.env).`)),
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnvFile()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(cfg.LogLevel)

		model := cfg.GeminiModel
		if modelFlag != "" {
			model = modelFlag
		}
		classifier, err := llm.NewGeminiClassifier(cmd.Context(), llm.Config{
			APIKey:      cfg.GeminiAPIKey,
			Model:       model,
			Temperature: cfg.GeminiTemperature,
			BaseURL:     cfg.GeminiBaseURL,
		})
		if err != nil {
			return err
		}
		return classifyAll(cmd.Context(), classifier, args, cmd.OutOrStdout(), cfg.RequestTimeout)
	},
}

func init() {
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON lines")
	rootCmd.Flags().StringVar(&modelFlag, "model", "", "Gemini model (default: GEMINI_MODEL or "+llm.DefaultModel+")")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// jsonLine is one --json output record.
type jsonLine struct {
	Source string        `json:"source"`
	Result *waste.Result `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// classifyAll runs one scan cycle per source, in order, and writes each
// outcome to out.
func classifyAll(ctx context.Context, classifier llm.Classifier, sources []string, out io.Writer, timeout time.Duration) error {
	scanner := scan.NewScanner(classifier).WithObserver(metrics.Observe("cli"))
	failed := false

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := scanner.Reset(); err != nil {
			return err
		}

		var st scan.State
		img, err := loadImage(ctx, src)
		if err != nil {
			log.Warn().Err(err).Str("source", src).Msg("failed to load image")
			st, _ = scanner.CaptureFailed(err.Error())
		} else {
			scanCtx, cancel := context.WithTimeout(ctx, timeout)
			st, err = scanner.Scan(scanCtx, img)
			cancel()
			if err != nil {
				return err
			}
		}

		if st.Status != scan.StatusComplete {
			failed = true
		}
		if err := printState(out, src, st); err != nil {
			return err
		}
	}

	if failed {
		return errSomeFailed
	}
	return nil
}

func printState(out io.Writer, src string, st scan.State) error {
	if jsonOutput {
		line := jsonLine{Source: src, Result: st.Result, Error: st.Error}
		return json.NewEncoder(out).Encode(line)
	}

	if st.Status != scan.StatusComplete {
		_, err := fmt.Fprintf(out, "%s\n  error: %s\n", src, st.Error)
		return err
	}
	res := st.Result
	_, err := fmt.Fprintf(out, "%s\n  %s %s (%s)\n  %s\n  item:       %s\n  confidence: %d%%\n  reasoning:  %s\n",
		src, res.Category.Emoji(), res.Category, res.Category.Color(), res.Category.Bin(),
		res.ItemName, res.ConfidencePercent(), res.Reasoning)
	return err
}

// loadImage reads a local file or downloads an http(s) URL.
func loadImage(ctx context.Context, src string) (waste.EncodedImage, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		res, err := httpClient.R().SetContext(ctx).Get(src)
		if err != nil {
			return waste.EncodedImage{}, fmt.Errorf("failed to download %s: %w", src, err)
		}
		if res.IsError() {
			return waste.EncodedImage{}, fmt.Errorf("failed to download %s: %s", src, res.Status())
		}
		mediaType, _, _ := strings.Cut(res.Header().Get("Content-Type"), ";")
		if !strings.HasPrefix(mediaType, "image/") {
			mediaType = getMimeType(src)
		}
		return encode(res.Body(), mediaType)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return waste.EncodedImage{}, fmt.Errorf("failed to read image: %w", err)
	}
	return encode(data, getMimeType(src))
}

func encode(data []byte, mediaType string) (waste.EncodedImage, error) {
	if len(data) == 0 {
		return waste.EncodedImage{}, waste.ErrEmptyImage
	}
	return waste.EncodeImage(data, mediaType), nil
}

func getMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
