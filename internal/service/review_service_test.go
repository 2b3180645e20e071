package service

import (
	"context"
	"errors"
	"math"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/haoping-api/internal/cache"
	"github.com/phrazzld/haoping-api/internal/config"
	"github.com/phrazzld/haoping-api/internal/credential"
	"github.com/phrazzld/haoping-api/internal/generation"
	"github.com/phrazzld/haoping-api/internal/platform/baidu"
	"github.com/phrazzld/haoping-api/internal/platform/postgres"
	"github.com/phrazzld/haoping-api/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type classifierFunc func(ctx context.Context, image []byte) ([]vision.Candidate, error)

func (f classifierFunc) Classify(ctx context.Context, image []byte) ([]vision.Candidate, error) {
	return f(ctx, image)
}

func confidence(v float64) *float64 { return &v }

func newReviewService(
	t *testing.T,
	recognizer Recognizer,
	gen generation.Generator,
	cfg ReviewConfig,
) (ReviewService, sqlmock.Sqlmock, *cache.Store) {
	t.Helper()
	db, sqlMock := newMockDB(t)
	memo := cache.New()
	svc, err := NewReviewService(
		db,
		postgres.NewPostgresCategoryStore(db, nil),
		postgres.NewPostgresCommentStore(db, nil),
		recognizer,
		gen,
		memo,
		cfg,
		nil,
	)
	require.NoError(t, err)
	return svc, sqlMock, memo
}

func expectCategoryByID(m sqlmock.Sqlmock, id int64, name string) {
	m.ExpectQuery(regexp.QuoteMeta("FROM categories WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(categoryCols).AddRow(id, name, "food", nil, nil, nil, 0))
}

func expectPersist(m sqlmock.Sqlmock, userID uuid.UUID, categoryID int64, name, content string, words int, commentID int64) {
	m.ExpectBegin()
	m.ExpectQuery(regexp.QuoteMeta("INSERT INTO comments")).
		WithArgs(userID, categoryID, name, content, words, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(commentID, time.Now().UTC()))
	m.ExpectExec(regexp.QuoteMeta("UPDATE categories SET use_count = use_count + 1")).
		WithArgs(categoryID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()
}

func TestReviewService_GenerateFromImage(t *testing.T) {
	t.Parallel()

	recognizer := vision.NewRecognizer(classifierFunc(func(ctx context.Context, image []byte) ([]vision.Candidate, error) {
		return []vision.Candidate{{Label: "寿司", Confidence: confidence(0.8)}}, nil
	}), nil, cache.New(), vision.DefaultConfig(), nil)

	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r generation.Request) bool {
		return strings.Contains(r.User, "寿司") &&
			strings.Contains(r.User, "美食") &&
			strings.Contains(r.User, "约 150 字") &&
			r.System == generation.SystemInstruction &&
			r.MaxTokens == 300 &&
			r.Temperature == generation.DefaultTemperature
	})).Return("  寿司很新鲜，师傅手艺稳定，下次还来。\n", nil).Once()

	svc, sqlMock, _ := newReviewService(t, recognizer, gen, DefaultReviewConfig())

	userID := uuid.New()
	expectCategoryByID(sqlMock, 1, "美食")
	expectPersist(sqlMock, userID, 1, "美食", "寿司很新鲜，师傅手艺稳定，下次还来。", 150, 77)

	comment, err := svc.Generate(context.Background(), GenerationRequest{
		UserID:       userID,
		CategoryID:   1,
		CategoryName: "美食",
		Words:        words(150),
		Images:       []vision.Image{{Data: []byte("imgA")}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(77), comment.ID)
	assert.Equal(t, "寿司很新鲜，师傅手艺稳定，下次还来。", comment.Content)
	assert.Equal(t, 150, comment.TargetWords)
	assert.Equal(t, int64(1), comment.CategoryID)
	assert.Equal(t, "美食", comment.CategoryName)
	gen.AssertExpectations(t)
}

func TestReviewService_PartialRecognitionFailure(t *testing.T) {
	t.Parallel()

	recognizer := vision.NewRecognizer(classifierFunc(func(ctx context.Context, image []byte) ([]vision.Candidate, error) {
		if string(image) == "img2" {
			return []vision.Candidate{{Label: "西红柿炒蛋", Confidence: confidence(0.9)}}, nil
		}
		return nil, errors.New("connection reset")
	}), nil, nil, vision.DefaultConfig(), nil)

	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r generation.Request) bool {
		return strings.Contains(r.User, "图片中识别出的菜品：西红柿炒蛋\n")
	})).Return("家常味道，很下饭。", nil).Once()

	svc, sqlMock, _ := newReviewService(t, recognizer, gen, DefaultReviewConfig())

	userID := uuid.New()
	expectCategoryByID(sqlMock, 1, "美食")
	expectPersist(sqlMock, userID, 1, "美食", "家常味道，很下饭。", 120, 1)

	_, err := svc.Generate(context.Background(), GenerationRequest{
		UserID:     userID,
		CategoryID: 1,
		Words:      words(120),
		Images: []vision.Image{
			{Data: []byte("img1")},
			{Data: []byte("img2")},
			{Data: []byte("img3")},
		},
	})
	require.NoError(t, err)
	gen.AssertExpectations(t)
}

func TestReviewService_GenerateFromKeyword(t *testing.T) {
	t.Parallel()

	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r generation.Request) bool {
		return strings.Contains(r.User, "关键词/主题：火锅") &&
			strings.Contains(r.User, "参考文案：锅底很香") &&
			strings.Contains(r.User, "语气轻松幽默")
	})).Return("锅底香，毛肚脆。", nil).Once()

	svc, sqlMock, _ := newReviewService(t, nil, gen, DefaultReviewConfig())

	userID := uuid.New()
	expectCategoryByID(sqlMock, 4, "火锅")
	expectPersist(sqlMock, userID, 4, "火锅", "锅底香，毛肚脆。", 800, 9)

	comment, err := svc.Generate(context.Background(), GenerationRequest{
		UserID:     userID,
		CategoryID: 4,
		Words:      words(5000),
		Keyword:    "火锅",
		Reference:  "锅底很香",
		Tone:       "humorous",
	})
	require.NoError(t, err)
	assert.Equal(t, 800, comment.TargetWords)
}

func TestReviewService_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  GenerationRequest
	}{
		{
			name: "missing user",
			req:  GenerationRequest{Words: words(100), Keyword: "火锅"},
		},
		{
			name: "missing words",
			req:  GenerationRequest{UserID: uuid.New(), Keyword: "火锅"},
		},
		{
			name: "no images keyword or reference",
			req:  GenerationRequest{UserID: uuid.New(), Words: words(100), Keyword: "   "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gen := &MockGenerator{}
			svc, _, _ := newReviewService(t, nil, gen, DefaultReviewConfig())

			_, err := svc.Generate(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, KindInvalidRequest, KindOf(err))
			gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
		})
	}
}

func TestReviewService_NoSubjectRecognized(t *testing.T) {
	t.Parallel()

	recognizer := &MockRecognizer{}
	recognizer.On("RecognizeAll", mock.Anything, mock.Anything).Return(nil, nil)
	gen := &MockGenerator{}
	svc, _, _ := newReviewService(t, recognizer, gen, DefaultReviewConfig())

	_, err := svc.Generate(context.Background(), GenerationRequest{
		UserID:  uuid.New(),
		Words:   words(100),
		Keyword: "火锅",
		Images:  []vision.Image{{URL: "https://example.com/blurry.jpg"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSubjectRecognized)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestReviewService_NoRecognizerConfigured(t *testing.T) {
	t.Parallel()

	t.Run("falls back to keyword", func(t *testing.T) {
		t.Parallel()
		gen := &MockGenerator{}
		gen.On("Generate", mock.Anything, mock.Anything).Return("不错。", nil).Once()
		svc, sqlMock, _ := newReviewService(t, nil, gen, DefaultReviewConfig())

		userID := uuid.New()
		expectCategoryByID(sqlMock, 1, "美食")
		expectPersist(sqlMock, userID, 1, "美食", "不错。", 100, 3)

		_, err := svc.Generate(context.Background(), GenerationRequest{
			UserID:     userID,
			CategoryID: 1,
			Words:      words(100),
			Keyword:    "烧烤",
			Images:     []vision.Image{{Data: []byte("img")}},
		})
		require.NoError(t, err)
	})

	t.Run("fails without keyword", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newReviewService(t, nil, &MockGenerator{}, DefaultReviewConfig())

		_, err := svc.Generate(context.Background(), GenerationRequest{
			UserID: uuid.New(),
			Words:  words(100),
			Images: []vision.Image{{Data: []byte("img")}},
		})
		assert.ErrorIs(t, err, ErrNoSubjectRecognized)
	})
}

func TestReviewService_UnconfiguredVisionKeysFallBackToKeyword(t *testing.T) {
	t.Parallel()

	memo := cache.New()
	tokens := credential.NewCache(baidu.ProviderName,
		baidu.NewIssuer(config.BaiduConfig{}, &http.Client{Timeout: time.Second}),
		time.Minute, memo, nil)
	classifier := baidu.NewClassifier(tokens, baidu.ClassifierOptions{}, nil)
	t.Cleanup(func() { _ = classifier.Close() })
	recognizer := vision.NewRecognizer(classifier, nil, memo, vision.DefaultConfig(), nil)

	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r generation.Request) bool {
		return strings.Contains(r.User, "烧烤")
	})).Return("串烤得很香，老板实在。", nil).Once()
	svc, sqlMock, _ := newReviewService(t, recognizer, gen, DefaultReviewConfig())

	userID := uuid.New()
	expectCategoryByID(sqlMock, 1, "美食")
	expectPersist(sqlMock, userID, 1, "美食", "串烤得很香，老板实在。", 100, 9)

	comment, err := svc.Generate(context.Background(), GenerationRequest{
		UserID:     userID,
		CategoryID: 1,
		Words:      words(100),
		Keyword:    "烧烤",
		Images:     []vision.Image{{Data: []byte("img")}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), comment.ID)
	gen.AssertExpectations(t)
	assert.NoError(t, sqlMock.ExpectationsWereMet())

	t.Run("still requires a keyword", func(t *testing.T) {
		svc, _, _ := newReviewService(t, recognizer, &MockGenerator{}, DefaultReviewConfig())
		_, err := svc.Generate(context.Background(), GenerationRequest{
			UserID: uuid.New(),
			Words:  words(100),
			Images: []vision.Image{{Data: []byte("img")}},
		})
		assert.ErrorIs(t, err, ErrNoSubjectRecognized)
	})
}

func TestReviewService_Timeout(t *testing.T) {
	t.Parallel()

	started := make(chan context.Context, 1)
	gen := generation.GeneratorFunc(func(ctx context.Context, req generation.Request) (string, error) {
		started <- ctx
		// Would succeed, but only after the deadline.
		time.Sleep(300 * time.Millisecond)
		return "迟到的好评。", nil
	})

	cfg := DefaultReviewConfig()
	cfg.Timeout = 50 * time.Millisecond
	svc, sqlMock, _ := newReviewService(t, nil, gen, cfg)
	expectCategoryByID(sqlMock, 1, "美食")

	begin := time.Now()
	_, err := svc.Generate(context.Background(), GenerationRequest{
		UserID:     uuid.New(),
		CategoryID: 1,
		Words:      words(100),
		Keyword:    "火锅",
	})
	elapsed := time.Since(begin)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 250*time.Millisecond, "timeout must not wait for the late result")

	callCtx := <-started
	assert.ErrorIs(t, callCtx.Err(), context.DeadlineExceeded, "the in-flight call must be cancelled")
}

func TestReviewService_CallerCancellation(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	gen := generation.GeneratorFunc(func(ctx context.Context, req generation.Request) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	svc, sqlMock, _ := newReviewService(t, nil, gen, DefaultReviewConfig())
	expectCategoryByID(sqlMock, 1, "美食")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := svc.Generate(ctx, GenerationRequest{
		UserID:     uuid.New(),
		CategoryID: 1,
		Words:      words(100),
		Keyword:    "火锅",
	})
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestReviewService_GenerationFailures(t *testing.T) {
	t.Parallel()

	upstream := &generation.UpstreamError{Provider: "deepseek", StatusCode: 429, Body: `{"error":"rate limited"}`}

	tests := []struct {
		name     string
		text     string
		err      error
		kind     Kind
		contains string
	}{
		{name: "upstream status", err: upstream, kind: KindGenerationUpstream, contains: "429"},
		{name: "transport", err: errors.New("dial tcp: connection refused"), kind: KindGenerationUpstream, contains: "model call failed"},
		{name: "blank text", text: " \n\t ", kind: KindGenerationEmptyOutput, contains: "no text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gen := &MockGenerator{}
			gen.On("Generate", mock.Anything, mock.Anything).Return(tt.text, tt.err).Once()
			svc, sqlMock, _ := newReviewService(t, nil, gen, DefaultReviewConfig())
			expectCategoryByID(sqlMock, 1, "美食")

			_, err := svc.Generate(context.Background(), GenerationRequest{
				UserID:     uuid.New(),
				CategoryID: 1,
				Words:      words(100),
				Keyword:    "火锅",
			})
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))

			var se *Error
			require.True(t, errors.As(err, &se))
			assert.Contains(t, se.Message, tt.contains)
		})
	}

	t.Run("upstream detail survives", func(t *testing.T) {
		t.Parallel()
		gen := &MockGenerator{}
		gen.On("Generate", mock.Anything, mock.Anything).Return("", upstream).Once()
		svc, sqlMock, _ := newReviewService(t, nil, gen, DefaultReviewConfig())
		expectCategoryByID(sqlMock, 1, "美食")

		_, err := svc.Generate(context.Background(), GenerationRequest{
			UserID: uuid.New(), CategoryID: 1, Words: words(100), Keyword: "火锅",
		})
		var ue *generation.UpstreamError
		require.True(t, errors.As(err, &ue))
		assert.Equal(t, 429, ue.StatusCode)
		assert.ErrorIs(t, err, generation.ErrUpstream)
	})
}

func TestReviewService_PersistIsAtomic(t *testing.T) {
	t.Parallel()

	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return("环境很好。", nil).Once()
	svc, sqlMock, memo := newReviewService(t, nil, gen, DefaultReviewConfig())

	userID := uuid.New()
	expectCategoryByID(sqlMock, 1, "美食")
	sqlMock.ExpectBegin()
	sqlMock.ExpectQuery(regexp.QuoteMeta("INSERT INTO comments")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(5, time.Now()))
	// The category vanished after it was resolved.
	sqlMock.ExpectExec(regexp.QuoteMeta("UPDATE categories SET use_count = use_count + 1")).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	sqlMock.ExpectRollback()

	_, err := svc.Generate(context.Background(), GenerationRequest{
		UserID:     userID,
		CategoryID: 1,
		Words:      words(100),
		Keyword:    "火锅",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)

	_, cached := memo.Get("category:id:1")
	assert.False(t, cached, "a failed write must drop the memoized category")
}

func TestReviewService_CategoryResolution(t *testing.T) {
	t.Parallel()

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		gen := &MockGenerator{}
		svc, sqlMock, _ := newReviewService(t, nil, gen, DefaultReviewConfig())
		sqlMock.ExpectQuery(regexp.QuoteMeta("FROM categories WHERE id = $1")).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows(categoryCols))

		_, err := svc.Generate(context.Background(), GenerationRequest{
			UserID: uuid.New(), CategoryID: 42, Words: words(100), Keyword: "火锅",
		})
		assert.ErrorIs(t, err, ErrCategoryNotFound)
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("memoized across calls", func(t *testing.T) {
		t.Parallel()
		gen := &MockGenerator{}
		gen.On("Generate", mock.Anything, mock.Anything).Return("好。", nil).Twice()
		svc, sqlMock, memo := newReviewService(t, nil, gen, DefaultReviewConfig())

		userID := uuid.New()
		expectCategoryByID(sqlMock, 1, "美食")
		expectPersist(sqlMock, userID, 1, "美食", "好。", 100, 1)
		expectPersist(sqlMock, userID, 1, "美食", "好。", 100, 2)

		for i := 0; i < 2; i++ {
			_, err := svc.Generate(context.Background(), GenerationRequest{
				UserID: userID, CategoryID: 1, Words: words(100), Keyword: "火锅",
			})
			require.NoError(t, err)
		}
		_, cached := memo.Get("category:id:1")
		assert.True(t, cached)
	})

	t.Run("default falls back to keyword", func(t *testing.T) {
		t.Parallel()
		gen := &MockGenerator{}
		gen.On("Generate", mock.Anything, mock.MatchedBy(func(r generation.Request) bool {
			return strings.Contains(r.User, "“美食”是一个大分类")
		})).Return("好。", nil).Once()
		svc, sqlMock, _ := newReviewService(t, nil, gen, DefaultReviewConfig())

		userID := uuid.New()
		sqlMock.ExpectQuery(regexp.QuoteMeta("WHERE name = $1 OR keyword = $1")).
			WithArgs("美食").
			WillReturnRows(sqlmock.NewRows(categoryCols))
		sqlMock.ExpectQuery(regexp.QuoteMeta("WHERE name = $1 OR keyword = $1")).
			WithArgs("food").
			WillReturnRows(sqlmock.NewRows(categoryCols).AddRow(1, "美食", "food", nil, nil, nil, 3))
		expectPersist(sqlMock, userID, 1, "美食", "好。", 100, 1)

		_, err := svc.Generate(context.Background(), GenerationRequest{
			UserID: userID, Words: words(100), Reference: "朋友推荐",
		})
		require.NoError(t, err)
		gen.AssertExpectations(t)
	})
}

func TestReviewService_Recognize(t *testing.T) {
	t.Parallel()

	recognizer := &MockRecognizer{}
	recognizer.On("RecognizeAll", mock.Anything, mock.Anything).
		Return([]vision.Result{{Label: "寿司", Environment: "吧台座位"}, {Label: "拉面"}}, nil)
	svc, sqlMock, _ := newReviewService(t, recognizer, &MockGenerator{}, DefaultReviewConfig())
	sqlMock.ExpectQuery(regexp.QuoteMeta("WHERE name = $1 OR keyword = $1")).
		WithArgs("美食").
		WillReturnRows(sqlmock.NewRows(categoryCols).AddRow(1, "美食", "food", nil, nil, nil, 0))

	rec, err := svc.Recognize(context.Background(), []vision.Image{{Data: []byte("a")}, {Data: []byte("b")}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"寿司", "拉面"}, rec.Dishes)
	require.Len(t, rec.Images, 2)
	assert.Equal(t, "吧台座位", rec.Images[0].Environment)
	assert.Equal(t, int64(1), rec.Category.ID)
	assert.Equal(t, "美食", rec.Category.Name)

	_, err = svc.Recognize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestClampWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want int
	}{
		{10, 50},
		{5000, 800},
		{200, 200},
		{50, 50},
		{800, 800},
		{199.6, 200},
		{-3, 50},
		{math.NaN(), 120},
		{math.Inf(1), 120},
		{math.Inf(-1), 120},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampWords(tt.in), "ClampWords(%v)", tt.in)
	}
	assert.Equal(t, 300, clampWords(math.NaN(), 300))
	assert.Equal(t, 50, clampWords(10, 300))
}

func TestReviewService_NonFiniteWordsUseConfiguredDefault(t *testing.T) {
	t.Parallel()

	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r generation.Request) bool {
		return strings.Contains(r.User, "约 300 字")
	})).Return("面条筋道，汤头浓。", nil).Once()

	cfg := DefaultReviewConfig()
	cfg.DefaultWords = 300
	svc, sqlMock, _ := newReviewService(t, nil, gen, cfg)

	userID := uuid.New()
	expectCategoryByID(sqlMock, 1, "美食")
	expectPersist(sqlMock, userID, 1, "美食", "面条筋道，汤头浓。", 300, 5)

	comment, err := svc.Generate(context.Background(), GenerationRequest{
		UserID:     userID,
		CategoryID: 1,
		Words:      words(math.Inf(1)),
		Keyword:    "拉面",
	})
	require.NoError(t, err)
	assert.Equal(t, 300, comment.TargetWords)
	gen.AssertExpectations(t)
}

func TestNewReviewService_NilDependencies(t *testing.T) {
	t.Parallel()

	db, _ := newMockDB(t)
	categories := postgres.NewPostgresCategoryStore(db, nil)
	comments := postgres.NewPostgresCommentStore(db, nil)

	_, err := NewReviewService(nil, categories, comments, nil, &MockGenerator{}, nil, ReviewConfig{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewReviewService(db, categories, comments, nil, nil, nil, ReviewConfig{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}
