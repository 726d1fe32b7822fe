package app

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"librarydesk/internal/util"
	"librarydesk/pkg/domain"
)

// SeedFile is the YAML layout of a starter catalog.
type SeedFile struct {
	Books []struct {
		Title       string `yaml:"title"`
		Author      string `yaml:"author"`
		Edition     string `yaml:"edition"`
		Language    string `yaml:"language"`
		Volume      string `yaml:"volume"`
		Section     string `yaml:"section"`
		Category    string `yaml:"category"`
		ShelfNumber string `yaml:"shelfNumber"`
		Copies      int    `yaml:"copies"`
	} `yaml:"books"`
	Members []struct {
		Name       string `yaml:"name"`
		FatherName string `yaml:"fatherName"`
		Address    string `yaml:"address"`
		Email      string `yaml:"email"`
		Phone      string `yaml:"phone"`
	} `yaml:"members"`
}

// SeedFromFile loads path into an empty catalog. It is a no-op when books exist,
// so restarts against a persistent database do not duplicate the seed.
// Returns the number of books and members created.
func (a *App) SeedFromFile(ctx context.Context, path string) (int, int, error) {
	if path == "" {
		return 0, 0, nil
	}
	existing, err := a.store.ListBooks()
	if err != nil {
		return 0, 0, err
	}
	if len(existing) > 0 {
		util.LoggerFromContext(ctx).Info("seed skipped, catalog not empty", "books", len(existing))
		return 0, 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read seed: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, 0, fmt.Errorf("parse seed: %w", err)
	}
	for i, b := range seed.Books {
		if _, err := a.CreateBook(domain.Book{
			Title:       b.Title,
			Author:      b.Author,
			Edition:     b.Edition,
			Language:    b.Language,
			Volume:      b.Volume,
			Section:     b.Section,
			Category:    b.Category,
			ShelfNumber: b.ShelfNumber,
			Copies:      b.Copies,
		}); err != nil {
			return i, 0, fmt.Errorf("seed book %d: %w", i, err)
		}
	}
	for i, m := range seed.Members {
		if _, err := a.CreateMember(domain.Member{
			Name:       m.Name,
			FatherName: m.FatherName,
			Address:    m.Address,
			Email:      m.Email,
			Phone:      m.Phone,
		}); err != nil {
			return len(seed.Books), i, fmt.Errorf("seed member %d: %w", i, err)
		}
	}
	util.LoggerFromContext(ctx).Info("catalog seeded", "books", len(seed.Books), "members", len(seed.Members))
	return len(seed.Books), len(seed.Members), nil
}
