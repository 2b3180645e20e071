// Package vision turns images into dish labels. Recognition is best-effort:
// every failure is logged and reported as "no label", never as an error, so a
// single bad image cannot abort a batch.
package vision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/haoping-api/internal/cache"
	"github.com/phrazzld/haoping-api/internal/credential"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/sourcegraph/conc/iter"
)

// Defaults observed from the production vendors. They are configuration,
// not constants of nature.
const (
	DefaultTopK            = 3
	DefaultMinConfidence   = 0.2
	DefaultNonSubjectLabel = "非菜"
	DefaultMemoTTL         = 10 * time.Minute
	DefaultMaxConcurrency  = 4
)

// ErrProviderUnavailable is returned by RecognizeAll when the classifier has
// no credentials and therefore no image could be classified at all.
var ErrProviderUnavailable = errors.New("vision provider unavailable")

// Image references an image either by URL or by its raw bytes. Data wins
// when both are set.
type Image struct {
	URL  string
	Data []byte
}

// Source describes the image for logs without dumping its bytes.
func (img Image) Source() string {
	if len(img.Data) > 0 {
		return "upload"
	}
	return img.URL
}

// Candidate is one ranked label returned by a classifier. Confidence is nil
// when the vendor does not report one. Environment and Scenes are filled only
// by vendors that describe the whole photo.
type Candidate struct {
	Label       string
	Confidence  *float64
	Environment string
	Scenes      string
}

// Result is an accepted recognition.
type Result struct {
	Source      string
	Label       string
	Confidence  *float64
	Environment string
	Scenes      string
}

// Classifier is a vendor vision endpoint returning ranked candidates, best
// first.
type Classifier interface {
	Classify(ctx context.Context, image []byte) ([]Candidate, error)
}

// Fetcher downloads image bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config tunes the acceptance policy.
type Config struct {
	MinConfidence   float64
	NonSubjectLabel string
	MemoTTL         time.Duration
	MaxConcurrency  int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence:   DefaultMinConfidence,
		NonSubjectLabel: DefaultNonSubjectLabel,
		MemoTTL:         DefaultMemoTTL,
		MaxConcurrency:  DefaultMaxConcurrency,
	}
}

// Recognizer applies the acceptance policy on top of a Classifier.
type Recognizer struct {
	classifier Classifier
	fetcher    Fetcher
	store      *cache.Store
	cfg        Config
	logger     *slog.Logger
}

// NewRecognizer wires a recognizer. store may be nil to disable memoization.
func NewRecognizer(classifier Classifier, fetcher Fetcher, store *cache.Store, cfg Config, logger *slog.Logger) *Recognizer {
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Recognizer{
		classifier: classifier,
		fetcher:    fetcher,
		store:      store,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "vision_recognizer")),
	}
}

// Recognize returns the accepted label for img, or nil when there is none.
func (r *Recognizer) Recognize(ctx context.Context, img Image) *Result {
	res, _ := r.recognize(ctx, img)
	return res
}

// recognize reports unavailable when the classifier refused for lack of
// credentials.
func (r *Recognizer) recognize(ctx context.Context, img Image) (res *Result, unavailable bool) {
	log := logger.FromContextOrDefault(ctx, r.logger).With(slog.String("image", img.Source()))

	data := img.Data
	if len(data) == 0 {
		if img.URL == "" || r.fetcher == nil {
			log.Warn("image has neither data nor a fetchable url")
			return nil, false
		}
		fetched, err := r.fetcher.Fetch(ctx, img.URL)
		if err != nil {
			log.Error("failed to download image for recognition", slog.String("error", err.Error()))
			return nil, false
		}
		data = fetched
	}

	key := memoKey(data)
	if r.store != nil {
		if cached, ok := cache.GetAs[Result](r.store, key); ok {
			log.Debug("recognition served from cache", slog.String("label", cached.Label))
			cached.Source = img.Source()
			return &cached, false
		}
	}

	candidates, err := r.classifier.Classify(ctx, data)
	if err != nil {
		if errors.Is(err, credential.ErrCredentialUnavailable) {
			log.Warn("vision provider not configured, skipping recognition")
			return nil, true
		}
		log.Error("dish recognition failed", slog.String("error", err.Error()))
		return nil, false
	}

	res = r.accept(candidates)
	if res == nil {
		log.Info("no usable dish recognized")
		return nil, false
	}
	res.Source = img.Source()

	if r.store != nil {
		r.store.Set(key, *res, r.cfg.MemoTTL)
	}
	log.Info("dish recognized", slog.String("label", res.Label))
	return res, false
}

// RecognizeAll recognizes every image concurrently and returns the accepted
// results. Order is not significant. When nothing was accepted and the
// classifier refused for lack of credentials, it returns
// ErrProviderUnavailable so callers can act as if recognition were disabled.
func (r *Recognizer) RecognizeAll(ctx context.Context, images []Image) ([]Result, error) {
	if len(images) == 0 {
		return nil, nil
	}

	type outcome struct {
		res         *Result
		unavailable bool
	}
	mapper := iter.Mapper[Image, outcome]{MaxGoroutines: r.cfg.MaxConcurrency}
	all := mapper.Map(images, func(img *Image) outcome {
		res, unavailable := r.recognize(ctx, *img)
		return outcome{res: res, unavailable: unavailable}
	})

	var results []Result
	unavailable := false
	for _, out := range all {
		if out.res != nil {
			results = append(results, *out.res)
		}
		unavailable = unavailable || out.unavailable
	}
	if len(results) == 0 && unavailable {
		return nil, ErrProviderUnavailable
	}
	return results, nil
}

func (r *Recognizer) accept(candidates []Candidate) *Result {
	if len(candidates) == 0 {
		return nil
	}
	top := candidates[0]
	label := strings.TrimSpace(top.Label)
	if label == "" || label == r.cfg.NonSubjectLabel {
		return nil
	}
	if top.Confidence != nil && *top.Confidence < r.cfg.MinConfidence {
		return nil
	}
	return &Result{
		Label:       label,
		Confidence:  top.Confidence,
		Environment: top.Environment,
		Scenes:      top.Scenes,
	}
}

// Labels extracts the labels from results.
func Labels(results []Result) []string {
	labels := make([]string, 0, len(results))
	for _, res := range results {
		labels = append(labels, res.Label)
	}
	return labels
}

func memoKey(data []byte) string {
	sum := sha256.Sum256(data)
	return "recognition:" + hex.EncodeToString(sum[:])
}
