// Command siloguard-audit runs a full cannibalization audit over a site
// export: static detection, search validation when GSC rows are present,
// priority-ranked fix plans, and a redirect CSV ready for import.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/siloworks/siloguard/pkg/siloguard"
	"github.com/siloworks/siloguard/pkg/siloguard/classify"
	"github.com/siloworks/siloguard/pkg/siloguard/config"
	"github.com/siloworks/siloguard/pkg/siloguard/detect"
	"github.com/siloworks/siloguard/pkg/siloguard/fixplan"
	"github.com/siloworks/siloguard/pkg/siloguard/store"
	"github.com/siloworks/siloguard/pkg/siloguard/store/memstore"
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

// exportSearchRow is one per-query performance row, typically a GSC export.
type exportSearchRow struct {
	Query       string  `yaml:"query"`
	PageURL     string  `yaml:"page_url"`
	Clicks      int64   `yaml:"clicks"`
	Impressions int64   `yaml:"impressions"`
	Position    float64 `yaml:"position"`
}

// siteExport is the audit input file.
type siteExport struct {
	Site          string            `yaml:"site"`
	Brand         string            `yaml:"brand"`
	HomepageTitle string            `yaml:"homepage_title"`
	Pages         []exportPage      `yaml:"pages"`
	SearchRows    []exportSearchRow `yaml:"search_rows"`
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

func detectionInput(ex *siteExport) siloguard.DetectionInput {
	in := siloguard.DetectionInput{
		Pages: make([]classify.PageInput, 0, len(ex.Pages)),
	}
	for _, p := range ex.Pages {
		in.Pages = append(in.Pages, classify.PageInput{
			ID:         p.ID,
			URL:        p.URL,
			Title:      p.Title,
			Content:    p.Content,
			IsHomepage: p.IsHomepage,
			IsNoindex:  p.IsNoindex,
			PostType:   p.PostType,
		})
	}
	for _, r := range ex.SearchRows {
		in.SearchRows = append(in.SearchRows, detect.SearchRow{
			Query:       r.Query,
			PageURL:     r.PageURL,
			Clicks:      r.Clicks,
			Impressions: r.Impressions,
			Position:    r.Position,
		})
	}
	return in
}

// loadComponents resolves configuration: file when given, defaults otherwise,
// with the export filling in site identity the file left blank.
func loadComponents(path string, ex *siteExport) (*config.Components, error) {
	comp, err := (&config.Loader{Path: path}).Load()
	if err != nil {
		return nil, err
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
		return nil, fmt.Errorf("site name missing from both config and export")
	}
	return comp, nil
}

func openStore(ctx context.Context, dbPath string) (store.Store, error) {
	if dbPath == "" {
		return memstore.New(), nil
	}
	return sqlite.Open(ctx, dbPath)
}

func writePlanFile(path string, plans []fixplan.Plan) error {
	return os.WriteFile(path, []byte(fixplan.Markdown(plans)), 0o644)
}

func writeRedirectFile(path string, plans []fixplan.Plan) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fixplan.WriteRedirectCSV(f, plans)
}

func writeReport(path string, result siloguard.DetectionResult, plans []fixplan.Plan) error {
	report := struct {
		GeneratedAt  time.Time        `json:"generated_at"`
		StaticIssues int              `json:"static_issues"`
		SearchIssues int              `json:"search_issues"`
		Conflicts    []store.Conflict `json:"conflicts"`
		Plans        []fixplan.Plan   `json:"plans"`
	}{
		GeneratedAt:  time.Now().UTC(),
		StaticIssues: result.StaticIssues,
		SearchIssues: result.SearchIssues,
		Conflicts:    result.Conflicts,
		Plans:        plans,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func main() {
	var (
		exportPath = flag.String("export", "", "Path to YAML site export with pages and optional search_rows (required)")
		configPath = flag.String("config", "", "Optional tuning config YAML")
		dbPath     = flag.String("db", "", "SQLite database path; omit for an in-memory run")
		csvPath    = flag.String("csv", "redirects.csv", "Output path for the redirect import CSV")
		planPath   = flag.String("plan", "action-plan.md", "Output path for the markdown action plan")
		reportPath = flag.String("report", "", "Optional JSON audit report path")
	)
	flag.Parse()

	if *exportPath == "" {
		log.Fatal("--export is required")
	}

	ctx := context.Background()

	ex, err := loadExport(*exportPath)
	if err != nil {
		log.Fatalf("load export: %v", err)
	}
	log.Printf("Loaded %d pages and %d search rows from %s", len(ex.Pages), len(ex.SearchRows), *exportPath)

	comp, err := loadComponents(*configPath, ex)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	st, err := openStore(ctx, *dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	sg, err := siloguard.New(siloguard.Options{Store: st, Config: comp})
	if err != nil {
		log.Fatalf("init engine: %v", err)
	}
	defer sg.Close()

	result, err := sg.RunDetection(ctx, detectionInput(ex))
	if err != nil {
		log.Fatalf("detection: %v", err)
	}
	log.Printf("Detection: %d static issues, %d search-validated issues, %d conflicts persisted",
		result.StaticIssues, result.SearchIssues, len(result.Conflicts))
	if len(ex.SearchRows) == 0 {
		log.Printf("WARNING: No search rows in the export; findings are static-only and unconfirmed by search data")
	}

	plans, err := sg.ProposeFixes(result.Issues)
	if err != nil {
		log.Fatalf("build plans: %v", err)
	}

	if err := writeRedirectFile(*csvPath, plans); err != nil {
		log.Fatalf("write redirect csv: %v", err)
	}
	if err := writePlanFile(*planPath, plans); err != nil {
		log.Fatalf("write action plan: %v", err)
	}
	if *reportPath != "" {
		if err := writeReport(*reportPath, result, plans); err != nil {
			log.Fatalf("write report: %v", err)
		}
	}

	review := 0
	for _, p := range plans {
		if p.RequiresReview {
			review++
		}
	}
	log.Printf("Plans: %d total, %d need review before execution", len(plans), review)
	fmt.Printf("Audit complete: %d conflicts, redirects in %s, action plan in %s\n", len(result.Conflicts), *csvPath, *planPath)
}
