package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"EventPoster/internal/domain"
	"EventPoster/internal/ports"
)

// PublishDeps wires finalization and publishing.
type PublishDeps struct {
	Publisher ports.Publisher
	Notifier  ports.Notifier
	Metrics   ports.Metrics
	Logger    *slog.Logger

	ImagesDir     string
	GeneratedRoot string
	PostDir       string
	DebugShot     string

	CaptionTemplate string
	City            string
	Location        string
	// KeepScratch leaves the rendering tree in place after finalize.
	KeepScratch bool

	Now func() time.Time
}

// PublishOutcome reports what finalize produced. PublishErr is informational; it never fails the run.
type PublishOutcome struct {
	Files      []string
	Published  bool
	PublishErr error
}

// PublishStage assembles the post directory and hands it to the publisher.
type PublishStage struct {
	publisher ports.Publisher
	notifier  ports.Notifier
	metrics   ports.Metrics
	logger    *slog.Logger

	imagesDir     string
	generatedRoot string
	postDir       string
	debugShot     string

	captionTemplate string
	city            string
	location        string
	keepScratch     bool

	now func() time.Time
}

// NewPublishStage builds the stage.
func NewPublishStage(deps PublishDeps) *PublishStage {
	return &PublishStage{
		publisher:       deps.Publisher,
		notifier:        deps.Notifier,
		metrics:         orNopMetrics(deps.Metrics),
		logger:          orDiscard(deps.Logger),
		imagesDir:       deps.ImagesDir,
		generatedRoot:   deps.GeneratedRoot,
		postDir:         deps.PostDir,
		debugShot:       deps.DebugShot,
		captionTemplate: firstNonEmpty(deps.CaptionTemplate, "Events in {city} {date}"),
		city:            deps.City,
		location:        deps.Location,
		keepScratch:     deps.KeepScratch,
		now:             orNow(deps.Now),
	}
}

// Finalize replaces the post directory with the approved set, removes the rendering tree and publishes.
func (s *PublishStage) Finalize(ctx context.Context, approved []string) (PublishOutcome, error) {
	files, err := s.Assemble(approved)
	if err != nil {
		return PublishOutcome{}, err
	}
	outcome := PublishOutcome{Files: files}

	if len(files) == 0 {
		s.logger.Warn("post directory is empty, skipping upload", "dir", s.postDir)
		notify(ctx, s.notifier, s.logger, "⚠️ No images in post folder, skipping upload.")
		return outcome, nil
	}
	if s.publisher == nil {
		s.logger.Info("no publisher configured, post directory left for manual upload", "dir", s.postDir, "files", len(files))
		return outcome, nil
	}

	req := domain.PublishRequest{Files: files, Caption: s.Caption(), Location: s.location}
	s.logger.Info("publishing", "files", len(files), "caption", req.Caption, "location", req.Location)
	notify(ctx, s.notifier, s.logger, fmt.Sprintf("⏳ Uploading %d image(s)...", len(files)))

	result, err := s.publisher.Publish(ctx, req)
	s.metrics.Published(err == nil)
	if err != nil {
		outcome.PublishErr = err
		s.logger.Error("publish failed", "error", err)
		notify(ctx, s.notifier, s.logger, fmt.Sprintf("❌ Upload failed: %v", err))

		shot := firstNonEmpty(result.DebugArtifact, s.debugShot)
		if shot != "" && fileExists(shot) {
			notifyFile(ctx, s.notifier, s.logger, shot, "🖥️ Debug screenshot at time of failure")
		}
		return outcome, nil
	}

	outcome.Published = true
	s.logger.Info("publish completed", "files", len(files))
	notify(ctx, s.notifier, s.logger, fmt.Sprintf("✅ Upload completed! (%d images)", len(files)))
	return outcome, nil
}

// Assemble rebuilds the post directory: title image first, then each approved image by file name.
// The rendering tree is removed afterwards whatever happens, unless KeepScratch is set.
func (s *PublishStage) Assemble(approved []string) (files []string, err error) {
	if !s.keepScratch && s.generatedRoot != "" {
		defer func() {
			if rmErr := os.RemoveAll(s.generatedRoot); rmErr != nil {
				s.logger.Warn("removing rendering tree failed", "dir", s.generatedRoot, "error", rmErr)
				return
			}
			s.logger.Info("rendering tree removed", "dir", s.generatedRoot)
		}()
	}

	if err := os.RemoveAll(s.postDir); err != nil {
		return nil, fmt.Errorf("clear post dir: %w", err)
	}
	if err := os.MkdirAll(s.postDir, 0o755); err != nil {
		return nil, fmt.Errorf("create post dir: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(s.imagesDir, "html")); err != nil {
		s.logger.Warn("removing render sources failed", "error", err)
	}

	titleSrc := filepath.Join(s.imagesDir, TitleImage)
	hasTitle := fileExists(titleSrc)
	if hasTitle {
		if err := copyFile(titleSrc, filepath.Join(s.postDir, TitleImage)); err != nil {
			return nil, fmt.Errorf("copy title image: %w", err)
		}
	}

	taken := map[string]bool{TitleImage: true}
	var copied []string
	for _, rel := range approved {
		src := filepath.Join(s.imagesDir, filepath.FromSlash(rel))
		if !fileExists(src) {
			s.logger.Warn("approved image missing", "image", rel)
			continue
		}

		name := path.Base(filepath.ToSlash(rel))
		if taken[name] {
			name = Slugify(path.Dir(filepath.ToSlash(rel))) + "-" + name
		}
		taken[name] = true

		if err := copyFile(src, filepath.Join(s.postDir, name)); err != nil {
			return nil, fmt.Errorf("copy %s: %w", rel, err)
		}
		copied = append(copied, name)
	}

	sort.Strings(copied)
	if hasTitle {
		files = append(files, filepath.Join(s.postDir, TitleImage))
	}
	for _, name := range copied {
		files = append(files, filepath.Join(s.postDir, name))
	}

	s.logger.Info("post directory ready", "dir", s.postDir, "files", len(files))
	return files, nil
}

// Caption fills the caption template with the city and today's date (D. M. YYYY).
func (s *PublishStage) Caption() string {
	today := s.now()
	date := fmt.Sprintf("%d. %d. %d", today.Day(), int(today.Month()), today.Year())
	return strings.NewReplacer("{city}", s.city, "{date}", date).Replace(s.captionTemplate)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ApprovedVenues returns the distinct venue folders of approved image paths, sorted.
func ApprovedVenues(approved []string) []string {
	seen := map[string]bool{}
	var venues []string
	for _, rel := range approved {
		rel = filepath.ToSlash(rel)
		idx := strings.Index(rel, "/")
		if idx <= 0 {
			continue
		}
		venue := rel[:idx]
		if !seen[venue] {
			seen[venue] = true
			venues = append(venues, venue)
		}
	}
	sort.Strings(venues)
	return venues
}
