package config

import (
	"fmt"
	"strings"
)

// Need names a group of settings a command depends on.
type Need int

const (
	NeedVenues Need = iota
	NeedExtractor
	NeedTelegram
	NeedPublisher
)

// ConfigurationError lists everything that prevents a command from starting.
type ConfigurationError struct {
	Missing  []string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Problems) > 0 {
		parts = append(parts, strings.Join(e.Problems, "; "))
	}
	return "configuration: " + strings.Join(parts, "; ")
}

func (e *ConfigurationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Problems) == 0
}

// Require checks the settings behind every need and returns a *ConfigurationError when any is absent.
func (c Config) Require(needs ...Need) error {
	verr := &ConfigurationError{}

	if c.City.Name == "" {
		verr.Missing = append(verr.Missing, "city.name")
	}
	if c.Paths.ScratchDir == "" {
		verr.Missing = append(verr.Missing, "paths.scratchDir")
	}
	if c.Paths.GeneratedDir == "" {
		verr.Missing = append(verr.Missing, "paths.generatedDir")
	}

	for _, need := range needs {
		switch need {
		case NeedVenues:
			c.checkVenues(verr)
		case NeedExtractor:
			c.checkExtractor(verr)
		case NeedTelegram:
			if c.Notifications.Telegram.BotToken == "" {
				verr.Missing = append(verr.Missing, telegramToken)
			}
			if c.Notifications.Telegram.ChatID == 0 {
				verr.Missing = append(verr.Missing, telegramChatID)
			}
		case NeedPublisher:
			if c.Publish.Command == "" {
				verr.Missing = append(verr.Missing, publishCmdEnv)
			}
		}
	}

	if verr.empty() {
		return nil
	}
	return verr
}

func (c Config) checkVenues(verr *ConfigurationError) {
	if len(c.Venues) == 0 {
		verr.Missing = append(verr.Missing, "venues")
		return
	}
	seen := map[string]bool{}
	for i, v := range c.Venues {
		if v.Title == "" || v.URL == "" || v.Parser == "" {
			verr.Problems = append(verr.Problems, fmt.Sprintf("venues[%d]: title, url and parser are required", i))
			continue
		}
		if seen[v.Title] {
			verr.Problems = append(verr.Problems, fmt.Sprintf("venues[%d]: duplicate title %q", i, v.Title))
		}
		seen[v.Title] = true
	}
}

func (c Config) checkExtractor(verr *ConfigurationError) {
	switch c.Extraction.Provider {
	case ProviderOpenAI:
		if c.ChatGPT.APIKey == "" {
			verr.Missing = append(verr.Missing, openAIKeyEnv)
		}
	case ProviderService:
		if c.ML.InferenceURL == "" {
			verr.Missing = append(verr.Missing, "ml.inferenceUrl")
		}
	default:
		verr.Problems = append(verr.Problems, fmt.Sprintf("unknown extraction provider %q", c.Extraction.Provider))
	}
}
