package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

type productRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Properties  string         `db:"properties"`
	Images      sql.NullString `db:"images"`
	Price       float64        `db:"price"`
}

func (s *Store) GetAllProducts(ctx context.Context) ([]Product, error) {
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, description, properties, images, price FROM products ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	products := make([]Product, 0, len(rows))
	for _, r := range rows {
		p := Product{ID: r.ID, Name: r.Name, Description: r.Description, Price: r.Price}
		if err := json.Unmarshal([]byte(r.Properties), &p.Properties); err != nil {
			log.Printf("Warning: failed to decode properties for product %s: %v. Skipping.", r.ID, err)
			continue
		}
		if err := unmarshalColumn(r.Images, &p.Images); err != nil {
			log.Printf("Warning: failed to decode images for product %s: %v", r.ID, err)
		}
		products = append(products, p)
	}
	return products, nil
}

// ReplaceProducts swaps the whole catalog in one transaction.
func (s *Store) ReplaceProducts(ctx context.Context, products []Product) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
			return fmt.Errorf("failed to clear products: %w", err)
		}
		for _, p := range products {
			props, err := json.Marshal(p.Properties)
			if err != nil {
				return fmt.Errorf("failed to encode product %s: %w", p.ID, err)
			}
			var images sql.NullString
			if len(p.Images) > 0 {
				if images, err = marshalColumn(p.Images); err != nil {
					return fmt.Errorf("failed to encode product %s images: %w", p.ID, err)
				}
			}
			row := productRow{ID: p.ID, Name: p.Name, Description: p.Description, Properties: string(props), Images: images, Price: p.Price}
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO products (id, name, description, properties, images, price)
				VALUES (:id, :name, :description, :properties, :images, :price)`, row); err != nil {
				return fmt.Errorf("failed to insert product %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// IngestProductsFromDir reads every *.json file in dir (one product object or an array of them),
// validates each product and replaces the catalog with the valid ones.
func (s *Store) IngestProductsFromDir(ctx context.Context, dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to list product files in %s: %w", dir, err)
	}
	if len(files) == 0 {
		log.Printf("No product files found in %s", dir)
		return 0, nil
	}
	sort.Strings(files)

	seen := make(map[string]bool)
	var products []Product
	for _, file := range files {
		loaded, err := readProductFile(file)
		if err != nil {
			log.Printf("Warning: could not load %s: %v. Skipping.", filepath.Base(file), err)
			continue
		}
		for _, p := range loaded {
			p.ID = strings.TrimSpace(p.ID)
			if p.ID == "" || strings.TrimSpace(p.Name) == "" {
				log.Printf("Warning: product without id or name in %s. Skipping.", filepath.Base(file))
				continue
			}
			if seen[p.ID] {
				log.Printf("Warning: duplicate product id %s in %s. Skipping.", p.ID, filepath.Base(file))
				continue
			}
			if err := p.Properties.Check(); err != nil {
				log.Printf("Warning: product %s has invalid properties: %v. Skipping.", p.ID, err)
				continue
			}
			seen[p.ID] = true
			products = append(products, p)
		}
	}

	if err := s.ReplaceProducts(ctx, products); err != nil {
		return 0, err
	}
	log.Printf("Successfully ingested %d products from %d files.", len(products), len(files))
	return len(products), nil
}

func readProductFile(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []Product
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return []Product{p}, nil
}
