package core

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"pnj.com/jewelry-designer/internal/artifact"
	"pnj.com/jewelry-designer/internal/store"
	"pnj.com/jewelry-designer/internal/utils"
)

const (
	NumRecommendations  = 5    // Default number of products to return
	MaxRecommendations  = 10   // Upper bound a caller may ask for
	SimilarityThreshold = 0.25 // Minimum similarity score to consider a product relevant
)

// RecommendationService ranks catalog products by attribute similarity to a design.
type RecommendationService struct {
	dbStore *store.Store

	mu       sync.RWMutex
	products []store.Product // In-memory copy of the catalog
	vectors  [][]float32
}

func NewRecommendationService(ctx context.Context, db *store.Store) (*RecommendationService, error) {
	s := &RecommendationService{dbStore: db}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload refreshes the in-memory catalog from the store.
func (s *RecommendationService) Reload(ctx context.Context) error {
	products, err := s.dbStore.GetAllProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load products for recommendation service: %w", err)
	}
	vectors := make([][]float32, len(products))
	for i, p := range products {
		vectors[i] = attributeVector(p.Properties)
	}

	s.mu.Lock()
	s.products, s.vectors = products, vectors
	s.mu.Unlock()

	if len(products) == 0 {
		log.Println("Warning: RecommendationService initialized with no products. Ingest a catalog with -ingest.")
	} else {
		log.Printf("RecommendationService initialized with %d products.", len(products))
	}
	return nil
}

type ScoredProduct struct {
	Product    store.Product
	Similarity float32
}

// Recommend returns up to limit products whose attributes are similar to criteria, best first.
func (s *RecommendationService) Recommend(criteria artifact.Properties, limit int) ([]ScoredProduct, error) {
	if limit <= 0 {
		limit = NumRecommendations
	}
	if limit > MaxRecommendations {
		limit = MaxRecommendations
	}

	query := attributeVector(criteria)
	if isZero(query) {
		return nil, fmt.Errorf("no recognised jewelry attributes to match on")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]ScoredProduct, 0, len(s.products))
	for i, p := range s.products {
		similarity, err := utils.CosineSimilarity(query, s.vectors[i])
		if err != nil {
			log.Printf("Error calculating similarity for product %s: %v. Skipping.", p.ID, err)
			continue
		}
		if similarity >= SimilarityThreshold {
			scored = append(scored, ScoredProduct{Product: p, Similarity: similarity})
		}
	}

	// Sort by similarity in descending order, ties by price then id for stable output
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		if scored[i].Product.Price != scored[j].Product.Price {
			return scored[i].Product.Price < scored[j].Product.Price
		}
		return scored[i].Product.ID < scored[j].Product.ID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func attributeVector(p artifact.Properties) []float32 {
	keys := artifact.EnumKeys()
	values := make(map[string]string, len(keys))
	for _, k := range keys {
		values[k] = p.Enum(k)
	}
	return utils.OneHot(keys, artifact.Vocabulary, values)
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
