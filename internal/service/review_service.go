package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/haoping-api/internal/cache"
	"github.com/phrazzld/haoping-api/internal/domain"
	"github.com/phrazzld/haoping-api/internal/generation"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/phrazzld/haoping-api/internal/redact"
	"github.com/phrazzld/haoping-api/internal/store"
	"github.com/phrazzld/haoping-api/internal/tone"
	"github.com/phrazzld/haoping-api/internal/vision"
)

// Pipeline defaults.
const (
	DefaultGenerationTimeout  = 30 * time.Second
	DefaultCategoryName       = "美食"
	DefaultCategoryKeyword    = "food"
	DefaultCategoryCacheTTL   = 5 * time.Minute
	defaultCategoryMemoKey    = "category:default"
	categoryMemoKeyPrefix     = "category:id:"
	categoryNameMemoKeyPrefix = "category:name:"
)

// Pipeline stages, logged as the "stage" attribute.
const (
	stageValidating  = "validating"
	stageRecognizing = "recognizing_images"
	stageResolving   = "resolving_category"
	stagePrompting   = "prompting"
	stageGenerating  = "generating"
	stagePersisting  = "persisting"
	stageDone        = "done"
)

// GenerationRequest is the caller input for one review.
type GenerationRequest struct {
	UserID uuid.UUID
	// CategoryID selects the category when positive.
	CategoryID int64
	// CategoryName is used for lookup when CategoryID is not set.
	CategoryName string
	// Words is the requested length. nil means the caller sent none.
	Words     *float64
	Reference string
	Tone      string
	Keyword   string
	Images    []vision.Image
}

// Recognition is the outcome of image analysis without generation. Images
// holds the accepted per-image results, including any photo description the
// vendor returned.
type Recognition struct {
	Dishes   []string
	Images   []vision.Result
	Category *domain.Category
}

// Recognizer labels a batch of images. Failed images are simply absent. It
// returns vision.ErrProviderUnavailable when the provider cannot be used at
// all, which is treated the same as having no recognizer.
type Recognizer interface {
	RecognizeAll(ctx context.Context, images []vision.Image) ([]vision.Result, error)
}

// ReviewService generates and stores reviews.
type ReviewService interface {
	// Generate runs the full pipeline and returns the stored comment.
	Generate(ctx context.Context, req GenerationRequest) (*domain.Comment, error)

	// Recognize labels images and resolves the default category without
	// generating text.
	Recognize(ctx context.Context, images []vision.Image) (*Recognition, error)
}

// ReviewConfig tunes the pipeline.
type ReviewConfig struct {
	Timeout          time.Duration
	DefaultCategory  string
	DefaultKeyword   string
	CategoryCacheTTL time.Duration
	Temperature      float64
	// DefaultWords is used when the requested length is NaN or infinite.
	DefaultWords int
}

// DefaultReviewConfig returns the production defaults.
func DefaultReviewConfig() ReviewConfig {
	return ReviewConfig{
		Timeout:          DefaultGenerationTimeout,
		DefaultCategory:  DefaultCategoryName,
		DefaultKeyword:   DefaultCategoryKeyword,
		CategoryCacheTTL: DefaultCategoryCacheTTL,
		Temperature:      generation.DefaultTemperature,
		DefaultWords:     domain.DefaultTargetWords,
	}
}

type reviewServiceImpl struct {
	db         store.TxBeginner
	categories store.CategoryStore
	comments   store.CommentStore
	recognizer Recognizer
	generator  generation.Generator
	memo       *cache.Store
	cfg        ReviewConfig
	logger     *slog.Logger
}

// NewReviewService wires the pipeline. recognizer may be nil when no vision
// provider is configured; memo may be nil to disable category memoization.
func NewReviewService(
	db store.TxBeginner,
	categories store.CategoryStore,
	comments store.CommentStore,
	recognizer Recognizer,
	generator generation.Generator,
	memo *cache.Store,
	cfg ReviewConfig,
	logger *slog.Logger,
) (ReviewService, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db", ErrNilDependency)
	}
	if categories == nil {
		return nil, fmt.Errorf("%w: categories", ErrNilDependency)
	}
	if comments == nil {
		return nil, fmt.Errorf("%w: comments", ErrNilDependency)
	}
	if generator == nil {
		return nil, fmt.Errorf("%w: generator", ErrNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultReviewConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if strings.TrimSpace(cfg.DefaultCategory) == "" {
		cfg.DefaultCategory = defaults.DefaultCategory
	}
	if strings.TrimSpace(cfg.DefaultKeyword) == "" {
		cfg.DefaultKeyword = defaults.DefaultKeyword
	}
	if cfg.CategoryCacheTTL <= 0 {
		cfg.CategoryCacheTTL = defaults.CategoryCacheTTL
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaults.Temperature
	}
	if cfg.DefaultWords < domain.MinTargetWords || cfg.DefaultWords > domain.MaxTargetWords {
		cfg.DefaultWords = defaults.DefaultWords
	}

	return &reviewServiceImpl{
		db:         db,
		categories: categories,
		comments:   comments,
		recognizer: recognizer,
		generator:  generator,
		memo:       memo,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "review_service")),
	}, nil
}

// ClampWords turns a requested length into a stored one. Values are rounded
// and clamped to [50, 800]; NaN and infinities get the default.
func ClampWords(words float64) int {
	return clampWords(words, domain.DefaultTargetWords)
}

func clampWords(words float64, fallback int) int {
	if math.IsNaN(words) || math.IsInf(words, 0) {
		return fallback
	}
	n := math.Round(words)
	if n < domain.MinTargetWords {
		return domain.MinTargetWords
	}
	if n > domain.MaxTargetWords {
		return domain.MaxTargetWords
	}
	return int(n)
}

// Generate implements ReviewService.
func (s *reviewServiceImpl) Generate(ctx context.Context, req GenerationRequest) (*domain.Comment, error) {
	const op = "generate"
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("user_id", req.UserID.String()))
	ctx = logger.WithLogger(ctx, log)

	log.Debug("generation stage", slog.String("stage", stageValidating))
	if req.UserID == uuid.Nil {
		return nil, newError(KindInvalidRequest, op, "user is required", nil)
	}
	if req.Words == nil {
		return nil, newError(KindInvalidRequest, op, "words is required", nil)
	}
	keyword := strings.TrimSpace(req.Keyword)
	reference := strings.TrimSpace(req.Reference)
	if len(req.Images) == 0 && keyword == "" && reference == "" {
		return nil, newError(KindInvalidRequest, op, "images, keyword or reference is required", nil)
	}
	words := clampWords(*req.Words, s.cfg.DefaultWords)

	var labels []string
	if len(req.Images) > 0 {
		log.Debug("generation stage", slog.String("stage", stageRecognizing), slog.Int("images", len(req.Images)))
		results, enabled := s.recognize(ctx, req.Images)
		labels = vision.Labels(results)
		if len(labels) == 0 && (enabled || keyword == "") {
			log.Info("no subject recognized", slog.Int("images", len(req.Images)))
			return nil, newError(KindNoSubjectRecognized, op, "no dish recognized, try a clearer image", nil)
		}
	}

	log.Debug("generation stage", slog.String("stage", stageResolving))
	category, err := s.resolveCategory(ctx, req.CategoryID, req.CategoryName)
	if err != nil {
		return nil, s.categoryError(op, err)
	}

	log.Debug("generation stage", slog.String("stage", stagePrompting), slog.String("category", category.Name))
	prompt := generation.BuildPrompt(generation.PromptInput{
		Category:     category.Name,
		Umbrella:     category.IsUmbrella(),
		Labels:       labels,
		Keyword:      keyword,
		Reference:    reference,
		ToneFragment: tone.Normalize(req.Tone),
		Words:        words,
	})

	log.Debug("generation stage", slog.String("stage", stageGenerating), slog.Duration("timeout", s.cfg.Timeout))
	text, err := s.complete(ctx, generation.Request{
		System:      generation.SystemInstruction,
		User:        prompt,
		Temperature: s.cfg.Temperature,
		MaxTokens:   generation.MaxTokens(words),
	})
	if err != nil {
		return nil, s.generationError(ctx, op, err)
	}

	log.Debug("generation stage", slog.String("stage", stagePersisting))
	comment, err := domain.NewComment(req.UserID, category, text, words)
	if err != nil {
		return nil, newError(KindPersistence, op, "generated comment is invalid", err)
	}
	if err := s.persist(ctx, comment); err != nil {
		s.forgetCategory(category.ID)
		log.Error("failed to persist comment",
			slog.Int64("category_id", category.ID),
			slog.String("error", err.Error()))
		return nil, newError(KindPersistence, op, "failed to save comment", err)
	}

	log.Debug("generation stage", slog.String("stage", stageDone), slog.Int64("comment_id", comment.ID))
	log.Info("comment generated",
		slog.Int64("comment_id", comment.ID),
		slog.Int64("category_id", category.ID),
		slog.Int("words", words),
		slog.Int("labels", len(labels)))
	return comment, nil
}

// Recognize implements ReviewService.
func (s *reviewServiceImpl) Recognize(ctx context.Context, images []vision.Image) (*Recognition, error) {
	const op = "recognize"
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(images) == 0 {
		return nil, newError(KindInvalidRequest, op, "images are required", nil)
	}
	results, _ := s.recognize(ctx, images)
	dishes := vision.Labels(results)
	if len(dishes) == 0 {
		log.Info("no subject recognized", slog.Int("images", len(images)))
		return nil, newError(KindNoSubjectRecognized, op, "no dish recognized, try a clearer image", nil)
	}

	category, err := s.resolveCategory(ctx, 0, "")
	if err != nil {
		return nil, s.categoryError(op, err)
	}

	log.Debug("images recognized", slog.Int("dishes", len(dishes)))
	return &Recognition{Dishes: dishes, Images: results, Category: category}, nil
}

// recognize reports enabled=false when there is no usable vision provider,
// either because none is wired or because its credentials are missing.
func (s *reviewServiceImpl) recognize(ctx context.Context, images []vision.Image) (results []vision.Result, enabled bool) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if s.recognizer == nil {
		log.Warn("image recognition requested but no vision provider is configured")
		return nil, false
	}
	results, err := s.recognizer.RecognizeAll(ctx, images)
	if err != nil {
		log.Warn("image recognition unavailable, continuing without labels", slog.String("error", err.Error()))
		return nil, false
	}
	return results, true
}

// complete races the model against the pipeline timeout. The call runs under
// a context bound to the timer so losing the race cancels it; its late result
// lands in a buffered channel and is dropped.
func (s *reviewServiceImpl) complete(ctx context.Context, req generation.Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := s.generator.Generate(ctx, req)
		done <- outcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return "", out.err
		}
		text := strings.TrimSpace(out.text)
		if text == "" {
			return "", generation.ErrEmptyOutput
		}
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *reviewServiceImpl) generationError(ctx context.Context, op string, err error) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var upstream *generation.UpstreamError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("generation timed out", slog.Duration("timeout", s.cfg.Timeout))
		return newError(KindGenerationTimeout, op,
			fmt.Sprintf("generation did not finish within %s", s.cfg.Timeout), err)
	case errors.Is(err, context.Canceled):
		log.Info("generation canceled by caller")
		return newError(KindCanceled, op, "request canceled", err)
	case errors.Is(err, generation.ErrEmptyOutput):
		log.Warn("generation returned empty output")
		return newError(KindGenerationEmptyOutput, op, "model returned no text", err)
	case errors.As(err, &upstream):
		log.Error("generation upstream error",
			slog.String("provider", upstream.Provider),
			slog.Int("status", upstream.StatusCode),
			slog.String("error", redact.Error(err)))
		msg := fmt.Sprintf("%s returned an error", upstream.Provider)
		if upstream.StatusCode != 0 {
			msg = fmt.Sprintf("%s returned status %d", upstream.Provider, upstream.StatusCode)
		}
		if upstream.Body != "" {
			msg += ": " + upstream.Body
		}
		return newError(KindGenerationUpstream, op, msg, err)
	default:
		log.Error("generation failed", slog.String("error", redact.Error(err)))
		return newError(KindGenerationUpstream, op, "model call failed", err)
	}
}

// persist writes the comment and bumps the category counter in one
// transaction.
func (s *reviewServiceImpl) persist(ctx context.Context, comment *domain.Comment) error {
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.comments.WithTx(tx).Create(ctx, comment); err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		if err := s.categories.WithTx(tx).IncrementUsage(ctx, comment.CategoryID); err != nil {
			return fmt.Errorf("increment category usage: %w", err)
		}
		return nil
	})
}

// resolveCategory looks the category up by id, then by name, then falls back
// to the configured default. Hits are memoized.
func (s *reviewServiceImpl) resolveCategory(ctx context.Context, id int64, name string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	switch {
	case id > 0:
		return s.memoized(categoryMemoKeyPrefix+strconv.FormatInt(id, 10), func() (*domain.Category, error) {
			return s.categories.GetByID(ctx, id)
		})
	case name != "":
		return s.memoized(categoryNameMemoKeyPrefix+name, func() (*domain.Category, error) {
			return s.categories.FindByNameOrKeyword(ctx, name)
		})
	default:
		return s.memoized(defaultCategoryMemoKey, func() (*domain.Category, error) {
			c, err := s.categories.FindByNameOrKeyword(ctx, s.cfg.DefaultCategory)
			if errors.Is(err, store.ErrCategoryNotFound) {
				return s.categories.FindByNameOrKeyword(ctx, s.cfg.DefaultKeyword)
			}
			return c, err
		})
	}
}

func (s *reviewServiceImpl) memoized(key string, load func() (*domain.Category, error)) (*domain.Category, error) {
	if s.memo != nil {
		if c, ok := cache.GetAs[*domain.Category](s.memo, key); ok {
			return c, nil
		}
	}
	c, err := load()
	if err != nil {
		return nil, err
	}
	if s.memo != nil {
		s.memo.Set(key, c, s.cfg.CategoryCacheTTL)
	}
	return c, nil
}

// forgetCategory drops memoized lookups after a write against the category
// failed, since the row may be gone.
func (s *reviewServiceImpl) forgetCategory(id int64) {
	if s.memo == nil {
		return
	}
	s.memo.Delete(categoryMemoKeyPrefix + strconv.FormatInt(id, 10))
	s.memo.Delete(defaultCategoryMemoKey)
}

func (s *reviewServiceImpl) categoryError(op string, err error) error {
	if store.IsNotFoundError(err) {
		s.logger.Error("category not found", slog.String("operation", op))
		return newError(KindCategoryNotFound, op, "category not found", err)
	}
	s.logger.Error("category lookup failed", slog.String("operation", op), slog.String("error", err.Error()))
	return newError(KindPersistence, op, "failed to load category", err)
}
