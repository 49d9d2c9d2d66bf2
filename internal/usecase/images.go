package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"EventPoster/internal/domain"
	"EventPoster/internal/ports"
)

// TitleImage is the file name of the aggregate title artifact.
const TitleImage = "title-post.png"

// ImageDeps wires the image stage.
type ImageDeps struct {
	Builder   ports.PageBuilder
	Inliner   ports.ImageInliner
	Renderer  ports.Renderer
	ImagesDir string
	Rand      *rand.Rand
	Now       func() time.Time
	Metrics   ports.Metrics
	Logger    *slog.Logger
}

// ImageStage renders one image per enriched event and the optional title image.
type ImageStage struct {
	builder   ports.PageBuilder
	inliner   ports.ImageInliner
	renderer  ports.Renderer
	imagesDir string
	rnd       *rand.Rand
	now       func() time.Time
	metrics   ports.Metrics
	logger    *slog.Logger
}

// NewImageStage builds the stage. A nil Rand is seeded from the clock.
func NewImageStage(deps ImageDeps) *ImageStage {
	rnd := deps.Rand
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &ImageStage{
		builder:   deps.Builder,
		inliner:   deps.Inliner,
		renderer:  deps.Renderer,
		imagesDir: deps.ImagesDir,
		rnd:       rnd,
		now:       orNow(deps.Now),
		metrics:   orNopMetrics(deps.Metrics),
		logger:    orDiscard(deps.Logger),
	}
}

// Clean removes every previously rendered artifact.
func (s *ImageStage) Clean() error {
	if err := os.RemoveAll(s.imagesDir); err != nil {
		return fmt.Errorf("clean images dir: %w", err)
	}
	return nil
}

// Render draws every successful detail. Per-item failures are logged and skipped.
func (s *ImageStage) Render(ctx context.Context, processed *domain.ProcessedSnapshot, generateTitle bool) ([]domain.Artifact, error) {
	if err := os.MkdirAll(s.imagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}

	var (
		artifacts []domain.Artifact
		failed    int
		venues    []string
	)

	for _, venue := range processed.Venues() {
		details, _ := processed.Get(venue)
		if len(details) == 0 {
			continue
		}

		used := map[string]int{}
		rendered := false
		for _, detail := range details {
			if detail.Failed() {
				continue
			}

			slug := Slugify(firstNonEmpty(detail.Title, "event"))
			used[slug]++
			if n := used[slug]; n > 1 {
				slug = fmt.Sprintf("%s-%d", slug, n)
			}

			artifact, err := s.renderEvent(ctx, venue, slug, detail)
			s.metrics.ImageRendered(err == nil)
			if err != nil {
				failed++
				s.logger.Warn("render failed", "venue", venue, "title", detail.Title, "error", err)
				continue
			}
			s.logger.Info("image rendered", "venue", venue, "file", artifact.Rel)
			artifacts = append(artifacts, artifact)
			rendered = true
		}
		if rendered {
			venues = append(venues, venue)
		}
	}

	if generateTitle {
		var backgrounds []string
		for _, a := range artifacts {
			if a.Source != "" {
				backgrounds = append(backgrounds, a.Source)
			}
		}
		if title, ok := s.renderTitle(ctx, venues, s.pick(backgrounds)); ok {
			artifacts = append(artifacts, title)
		}
	}

	s.logger.Info("image stage done", "rendered", len(artifacts), "failed", failed)
	return artifacts, nil
}

// RenderTitle draws the title image for the given venues using a random rendered image of theirs as backdrop.
func (s *ImageStage) RenderTitle(ctx context.Context, venues []string) (domain.Artifact, bool) {
	var candidates []string
	for _, venue := range venues {
		matches, err := filepath.Glob(filepath.Join(s.imagesDir, venueDir(venue), "*.png"))
		if err != nil {
			continue
		}
		candidates = append(candidates, matches...)
	}
	sort.Strings(candidates)

	background := ""
	if chosen := s.pick(candidates); chosen != "" && s.inliner != nil {
		src, err := s.inliner.InlineFile(chosen)
		if err != nil {
			s.logger.Warn("title background unavailable", "file", chosen, "error", err)
		} else {
			background = src
		}
	}

	return s.renderTitle(ctx, venues, background)
}

func (s *ImageStage) renderEvent(ctx context.Context, venue, slug string, detail domain.EventDetail) (domain.Artifact, error) {
	src := detail.ImageURL
	if src != "" && !strings.HasPrefix(src, "data:") {
		src = ""
		if s.inliner != nil {
			inlined, err := s.inliner.InlineURL(ctx, detail.ImageURL)
			if err != nil {
				s.logger.Warn("image download failed", "venue", venue, "url", detail.ImageURL, "error", err)
			} else {
				src = inlined
			}
		}
	}

	page, err := s.builder.EventPage(detail, venue, src)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("build page: %w", err)
	}

	rel := path.Join(venueDir(venue), slug+".png")
	out := filepath.Join(s.imagesDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return domain.Artifact{}, fmt.Errorf("create venue dir: %w", err)
	}
	if err := s.renderer.Render(ctx, page, out); err != nil {
		return domain.Artifact{}, err
	}

	return domain.Artifact{Venue: venue, Slug: slug, Path: out, Rel: rel, Source: src}, nil
}

func (s *ImageStage) renderTitle(ctx context.Context, venues []string, background string) (domain.Artifact, bool) {
	page, err := s.builder.TitlePage(venues, s.now(), background)
	if err != nil {
		s.logger.Warn("title page build failed", "error", err)
		return domain.Artifact{}, false
	}

	out := filepath.Join(s.imagesDir, TitleImage)
	if err := s.renderer.Render(ctx, page, out); err != nil {
		s.metrics.ImageRendered(false)
		s.logger.Warn("title render failed", "error", err)
		return domain.Artifact{}, false
	}
	s.metrics.ImageRendered(true)
	s.logger.Info("title image rendered", "venues", strings.Join(venues, " | "), "with_background", background != "")
	return domain.Artifact{Slug: "title-post", Path: out, Rel: TitleImage, Source: background}, true
}

func (s *ImageStage) pick(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	return candidates[s.rnd.IntN(len(candidates))]
}

// ListRendered returns the rendered event images relative to dir, sorted, without the title image.
func ListRendered(dir string) ([]string, error) {
	var rels []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "html" && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(p), ".png") || d.Name() == TitleImage {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list rendered images: %w", err)
	}
	sort.Strings(rels)
	return rels, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
