// Package config loads siloguard's tuning file and assembles the component
// configurations. Every field is optional; anything absent keeps the
// defaults the detectors and the preflight pipeline were tuned with.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/siloworks/siloguard/pkg/siloguard/detect"
	"github.com/siloworks/siloguard/pkg/siloguard/internalerr"
	"github.com/siloworks/siloguard/pkg/siloguard/preflight"
)

// Site identifies the site under analysis.
type Site struct {
	Name          string `yaml:"name"`
	Brand         string `yaml:"brand"`
	HomepageTitle string `yaml:"homepage_title"`
}

type fileConfig struct {
	Site      Site   `yaml:"site"`
	StorePath string `yaml:"store_path"`

	Static struct {
		NearDupHigh    *float64 `yaml:"near_dup_high"`
		NearDupLow     *float64 `yaml:"near_dup_low"`
		BoilerplateMin *int     `yaml:"boilerplate_min"`
	} `yaml:"static"`

	Search struct {
		MinImpressions *int64   `yaml:"min_impressions"`
		PrimaryShare   *float64 `yaml:"primary_share"`
		SecondaryShare *float64 `yaml:"secondary_share"`
		NoiseShare     *float64 `yaml:"noise_share"`
		SevereShare    *float64 `yaml:"severe_share"`
		SeverePages    *int     `yaml:"severe_pages"`
		HighSecondary  *float64 `yaml:"high_secondary"`
		MaxClusterSize *int     `yaml:"max_cluster_size"`
	} `yaml:"search"`

	Preflight struct {
		TitleOverlapBlock *float64 `yaml:"title_overlap_block"`
		TitleOverlapWarn  *float64 `yaml:"title_overlap_warn"`
		SkeletonBlock     *float64 `yaml:"skeleton_block"`
		SkeletonWarn      *float64 `yaml:"skeleton_warn"`
		SlugBlock         *float64 `yaml:"slug_block"`
		SlugWarn          *float64 `yaml:"slug_warn"`
		CrossCheckBlock   *float64 `yaml:"cross_check_block"`
		CanonicalBlock    *float64 `yaml:"canonical_block"`
	} `yaml:"preflight"`

	RedirectTimeoutSeconds *int `yaml:"redirect_timeout_seconds"`
}

// Components holds the assembled configuration for every siloguard part.
type Components struct {
	Site            Site
	StorePath       string
	Static          detect.StaticConfig
	Search          detect.SearchConfig
	Preflight       preflight.Config
	RedirectTimeout time.Duration
}

// Loader reads the optional YAML tuning file.
type Loader struct {
	Path string
}

// Load parses the file at Path and overlays it on the defaults. An empty
// Path returns pure defaults.
func (l *Loader) Load() (*Components, error) {
	comp := &Components{
		Static:          detect.DefaultStaticConfig(),
		Search:          detect.DefaultSearchConfig(),
		Preflight:       preflight.DefaultConfig(),
		RedirectTimeout: 10 * time.Second,
	}
	if l.Path == "" {
		return comp, nil
	}

	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	comp.Site = fc.Site
	if fc.StorePath != "" {
		comp.StorePath = fc.StorePath
	}

	setFloat(&comp.Static.NearDupHigh, fc.Static.NearDupHigh)
	setFloat(&comp.Static.NearDupLow, fc.Static.NearDupLow)
	setInt(&comp.Static.BoilerplateMin, fc.Static.BoilerplateMin)

	if fc.Search.MinImpressions != nil {
		comp.Search.MinImpressions = *fc.Search.MinImpressions
	}
	setFloat(&comp.Search.PrimaryShare, fc.Search.PrimaryShare)
	setFloat(&comp.Search.SecondaryShare, fc.Search.SecondaryShare)
	setFloat(&comp.Search.NoiseShare, fc.Search.NoiseShare)
	setFloat(&comp.Search.SevereShare, fc.Search.SevereShare)
	setInt(&comp.Search.SeverePages, fc.Search.SeverePages)
	setFloat(&comp.Search.HighSecondary, fc.Search.HighSecondary)
	setInt(&comp.Search.MaxClusterSize, fc.Search.MaxClusterSize)

	setFloat(&comp.Preflight.TitleOverlapBlock, fc.Preflight.TitleOverlapBlock)
	setFloat(&comp.Preflight.TitleOverlapWarn, fc.Preflight.TitleOverlapWarn)
	setFloat(&comp.Preflight.SkeletonBlock, fc.Preflight.SkeletonBlock)
	setFloat(&comp.Preflight.SkeletonWarn, fc.Preflight.SkeletonWarn)
	setFloat(&comp.Preflight.SlugBlock, fc.Preflight.SlugBlock)
	setFloat(&comp.Preflight.SlugWarn, fc.Preflight.SlugWarn)
	setFloat(&comp.Preflight.CrossCheckBlock, fc.Preflight.CrossCheckBlock)
	setFloat(&comp.Preflight.CanonicalBlock, fc.Preflight.CanonicalBlock)

	if fc.RedirectTimeoutSeconds != nil {
		comp.RedirectTimeout = time.Duration(*fc.RedirectTimeoutSeconds) * time.Second
	}

	if err := comp.validate(); err != nil {
		return nil, err
	}
	return comp, nil
}

func (c *Components) validate() error {
	shares := map[string]float64{
		"static.near_dup_high":          c.Static.NearDupHigh,
		"static.near_dup_low":           c.Static.NearDupLow,
		"search.primary_share":          c.Search.PrimaryShare,
		"search.secondary_share":        c.Search.SecondaryShare,
		"search.noise_share":            c.Search.NoiseShare,
		"search.severe_share":           c.Search.SevereShare,
		"search.high_secondary":         c.Search.HighSecondary,
		"preflight.title_overlap_block": c.Preflight.TitleOverlapBlock,
		"preflight.title_overlap_warn":  c.Preflight.TitleOverlapWarn,
		"preflight.skeleton_block":      c.Preflight.SkeletonBlock,
		"preflight.skeleton_warn":       c.Preflight.SkeletonWarn,
		"preflight.slug_block":          c.Preflight.SlugBlock,
		"preflight.slug_warn":           c.Preflight.SlugWarn,
		"preflight.cross_check_block":   c.Preflight.CrossCheckBlock,
		"preflight.canonical_block":     c.Preflight.CanonicalBlock,
	}
	for name, v := range shares {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s = %v is outside [0,1]: %w", name, v, internalerr.ErrInvalidConfig)
		}
	}
	if c.Static.NearDupLow > c.Static.NearDupHigh {
		return fmt.Errorf("static.near_dup_low above near_dup_high: %w", internalerr.ErrInvalidConfig)
	}
	if c.RedirectTimeout <= 0 {
		return fmt.Errorf("redirect_timeout_seconds must be positive: %w", internalerr.ErrInvalidConfig)
	}
	return nil
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
