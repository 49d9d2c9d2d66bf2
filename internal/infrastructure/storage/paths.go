package storage

import "path/filepath"

// File names of the persisted stage contracts.
const (
	FetchedFile    = "fetched-events.json"
	ProcessedFile  = "processed-events.json"
	PollStateFile  = "poll-state.json"
	ReviewFile     = "image-review.json"
	DebugShotFile  = "debug-screenshot.png"
	TitleImageFile = "title-post.png"
)

// Paths resolves every per-city location. Two cities never share a directory.
type Paths struct {
	// Scratch holds JSON snapshots and the post directory.
	Scratch string
	// Generated is the rendering tree removed after finalize.
	Generated string
}

// NewPaths builds the city-scoped roots from the configured parents.
func NewPaths(scratchDir, generatedDir, city string) Paths {
	return Paths{
		Scratch:   filepath.Join(scratchDir, city),
		Generated: filepath.Join(generatedDir, city),
	}
}

func (p Paths) Fetched() string { return filepath.Join(p.Scratch, FetchedFile) }
func (p Paths) Processed() string { return filepath.Join(p.Scratch, ProcessedFile) }
func (p Paths) PollState() string { return filepath.Join(p.Scratch, PollStateFile) }
func (p Paths) Review() string { return filepath.Join(p.Scratch, ReviewFile) }
func (p Paths) DebugShot() string { return filepath.Join(p.Scratch, DebugShotFile) }
func (p Paths) Post() string { return filepath.Join(p.Scratch, "post") }
func (p Paths) Images() string { return filepath.Join(p.Generated, "images") }
func (p Paths) HTML() string { return filepath.Join(p.Images(), "html") }
func (p Paths) TitleImage() string { return filepath.Join(p.Images(), TitleImageFile) }
