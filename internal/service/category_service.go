package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/phrazzld/haoping-api/internal/domain"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/phrazzld/haoping-api/internal/store"
	"gopkg.in/yaml.v3"
)

// CategorySeed is one node in a category seed file. The id is the stable
// slug used as the keyword when no keyword is given.
type CategorySeed struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Keyword    string         `yaml:"keyword"`
	Icon       string         `yaml:"icon"`
	ActiveIcon string         `yaml:"active_icon"`
	Children   []CategorySeed `yaml:"children"`
}

// ErrSeedFormat is returned when a seed file is neither a list nor an
// object with an items or categories list.
var ErrSeedFormat = errors.New("category seed must be a list, or an object with an items or categories list")

// CategoryService loads the category tree.
type CategoryService interface {
	// Seed upserts every category in the file at path, children included,
	// and returns the stored rows in file order.
	Seed(ctx context.Context, path string) ([]*domain.Category, error)

	// SeedAll upserts seeds in one transaction.
	SeedAll(ctx context.Context, seeds []CategorySeed) ([]*domain.Category, error)
}

type categoryServiceImpl struct {
	db         store.TxBeginner
	categories store.CategoryStore
	logger     *slog.Logger
}

// NewCategoryService creates a CategoryService.
func NewCategoryService(db store.TxBeginner, categories store.CategoryStore, logger *slog.Logger) (CategoryService, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db", ErrNilDependency)
	}
	if categories == nil {
		return nil, fmt.Errorf("%w: categories", ErrNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &categoryServiceImpl{
		db:         db,
		categories: categories,
		logger:     logger.With(slog.String("component", "category_service")),
	}, nil
}

// ParseCategorySeeds decodes a YAML or JSON seed document.
func ParseCategorySeeds(data []byte) ([]CategorySeed, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse category seed: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, ErrSeedFormat
	}
	doc := root.Content[0]

	var list *yaml.Node
	switch doc.Kind {
	case yaml.SequenceNode:
		list = doc
	case yaml.MappingNode:
		for i := 0; i+1 < len(doc.Content); i += 2 {
			key, value := doc.Content[i].Value, doc.Content[i+1]
			if (key == "items" || key == "categories") && value.Kind == yaml.SequenceNode {
				list = value
				break
			}
		}
	}
	if list == nil {
		return nil, ErrSeedFormat
	}

	var seeds []CategorySeed
	if err := list.Decode(&seeds); err != nil {
		return nil, fmt.Errorf("decode category seed: %w", err)
	}
	return seeds, nil
}

// Seed implements CategoryService.
func (s *categoryServiceImpl) Seed(ctx context.Context, path string) ([]*domain.Category, error) {
	const op = "seed_categories"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(KindInvalidRequest, op, "cannot read seed file", err)
	}
	seeds, err := ParseCategorySeeds(data)
	if err != nil {
		return nil, newError(KindInvalidRequest, op, "invalid seed file", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("seeding categories",
		slog.String("file", path),
		slog.Int("top_level", len(seeds)))
	return s.SeedAll(ctx, seeds)
}

// SeedAll implements CategoryService.
func (s *categoryServiceImpl) SeedAll(ctx context.Context, seeds []CategorySeed) ([]*domain.Category, error) {
	const op = "seed_categories"
	log := logger.FromContextOrDefault(ctx, s.logger)

	var seeded []*domain.Category
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		seeded = seeded[:0]
		return s.upsertTree(ctx, s.categories.WithTx(tx), seeds, nil, &seeded)
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return nil, newError(KindInvalidRequest, op, "invalid category in seed", err)
		}
		log.Error("failed to seed categories", slog.String("error", err.Error()))
		return nil, newError(KindPersistence, op, "failed to seed categories", err)
	}

	log.Info("categories seeded", slog.Int("count", len(seeded)))
	return seeded, nil
}

func (s *categoryServiceImpl) upsertTree(
	ctx context.Context,
	categories store.CategoryStore,
	seeds []CategorySeed,
	parentID *int64,
	out *[]*domain.Category,
) error {
	for _, seed := range seeds {
		keyword := strings.TrimSpace(seed.Keyword)
		if keyword == "" {
			keyword = strings.TrimSpace(seed.ID)
		}
		c := &domain.Category{
			Name:       strings.TrimSpace(seed.Name),
			Keyword:    keyword,
			ParentID:   parentID,
			Icon:       seed.Icon,
			ActiveIcon: seed.ActiveIcon,
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := categories.Upsert(ctx, c); err != nil {
			return fmt.Errorf("upsert category %q: %w", c.Name, err)
		}
		*out = append(*out, c)

		if len(seed.Children) > 0 {
			id := c.ID
			if err := s.upsertTree(ctx, categories, seed.Children, &id, out); err != nil {
				return err
			}
		}
	}
	return nil
}
