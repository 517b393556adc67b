// Command siloguard-bootstrap seeds the keyword registry from an existing
// site export. Every indexable page derives a primary keyword; pages deriving
// the same keyword are resolved by page authority, and the losers are written
// to a review file so their keywords can be pivoted or the pages merged.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/siloworks/siloguard/pkg/siloguard"
	"github.com/siloworks/siloguard/pkg/siloguard/classify"
	"github.com/siloworks/siloguard/pkg/siloguard/config"
	"github.com/siloworks/siloguard/pkg/siloguard/registry"
	"github.com/siloworks/siloguard/pkg/siloguard/store/sqlite"
)

// exportPage is one page row in the site export file.
type exportPage struct {
	ID           int64  `yaml:"id"`
	URL          string `yaml:"url"`
	Title        string `yaml:"title"`
	Content      string `yaml:"content"`
	PostType     string `yaml:"post_type"`
	IsHomepage   bool   `yaml:"is_homepage"`
	IsNoindex    bool   `yaml:"is_noindex"`
	FocusKeyword string `yaml:"focus_keyword"`
	WordCount    int    `yaml:"word_count"`
}

// siteExport is the bootstrap input file. Search rows are ignored here.
type siteExport struct {
	Site          string       `yaml:"site"`
	Brand         string       `yaml:"brand"`
	HomepageTitle string       `yaml:"homepage_title"`
	Pages         []exportPage `yaml:"pages"`
}

// lostClaim is one review row in the losers report.
type lostClaim struct {
	PageID       int64  `yaml:"page_id"`
	PageURL      string `yaml:"page_url"`
	Keyword      string `yaml:"keyword"`
	WinnerPageID int64  `yaml:"winner_page_id"`
}

func loadExport(path string) (*siteExport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ex siteExport
	if err := yaml.Unmarshal(data, &ex); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}
	if len(ex.Pages) == 0 {
		return nil, fmt.Errorf("export has no pages")
	}
	return &ex, nil
}

func candidates(ex *siteExport) []registry.Candidate {
	out := make([]registry.Candidate, 0, len(ex.Pages))
	for _, p := range ex.Pages {
		out = append(out, registry.Candidate{
			Page: classify.PageInput{
				ID:         p.ID,
				URL:        p.URL,
				Title:      p.Title,
				Content:    p.Content,
				IsHomepage: p.IsHomepage,
				IsNoindex:  p.IsNoindex,
				PostType:   p.PostType,
			},
			FocusKeyword: p.FocusKeyword,
			WordCount:    p.WordCount,
		})
	}
	return out
}

func writeLosers(path string, losers []registry.LostClaim) error {
	rows := make([]lostClaim, 0, len(losers))
	for _, l := range losers {
		rows = append(rows, lostClaim{
			PageID:       l.PageID,
			PageURL:      l.PageURL,
			Keyword:      l.Keyword,
			WinnerPageID: l.WinnerPageID,
		})
	}
	data := struct {
		Losers []lostClaim `yaml:"losers"`
	}{Losers: rows}
	buf, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	header := []byte("# Pages whose derived keyword was claimed by a stronger page.\n" +
		"# Review each: pivot the page to a distinct keyword, or merge it into the winner.\n\n")
	return os.WriteFile(path, append(header, buf...), 0o644)
}

func main() {
	var (
		exportPath = flag.String("export", "", "Path to YAML site export (required)")
		dbPath     = flag.String("db", "", "SQLite database path for the registry (required)")
		configPath = flag.String("config", "", "Optional tuning config YAML")
		losersPath = flag.String("losers", "", "Optional YAML review file for pages that lost their keyword")
	)
	flag.Parse()

	if *exportPath == "" || *dbPath == "" {
		log.Fatal("--export and --db are required")
	}

	ctx := context.Background()

	ex, err := loadExport(*exportPath)
	if err != nil {
		log.Fatalf("load export: %v", err)
	}
	log.Printf("Loaded %d pages from %s", len(ex.Pages), *exportPath)

	comp, err := (&config.Loader{Path: *configPath}).Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if comp.Site.Name == "" {
		comp.Site.Name = ex.Site
	}
	if comp.Site.Brand == "" {
		comp.Site.Brand = ex.Brand
	}
	if comp.Site.HomepageTitle == "" {
		comp.Site.HomepageTitle = ex.HomepageTitle
	}
	if comp.Site.Name == "" {
		log.Fatal("site name missing from both config and export")
	}

	st, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	sg, err := siloguard.New(siloguard.Options{Store: st, Config: comp})
	if err != nil {
		log.Fatalf("init engine: %v", err)
	}
	defer sg.Close()

	result, err := sg.Bootstrap(ctx, candidates(ex))
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	if *losersPath != "" && len(result.Losers) > 0 {
		if err := writeLosers(*losersPath, result.Losers); err != nil {
			log.Fatalf("write losers: %v", err)
		}
		log.Printf("Losers report written to %s", *losersPath)
	}
	if len(result.Losers) > 0 {
		log.Printf("WARNING: %d pages lost their keyword to a stronger page; review them before publishing new content", len(result.Losers))
	}

	fmt.Printf("Registry seeded: %d keywords assigned, %d pages lost their claim\n", len(result.Assigned), len(result.Losers))
}
