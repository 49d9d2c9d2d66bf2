package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"EventPoster/internal/config"
)

// Command names.
const (
	CmdFetch    = "fetch"
	CmdProcess  = "process"
	CmdImages   = "images"
	CmdMorning  = "morning"
	CmdPost     = "post"
	CmdReview   = "review"
	CmdRun      = "run"
	CmdSchedule = "schedule"
	CmdSetup    = "setup"
	CmdStatus   = "status"
)

// ErrUnknownCommand is returned for an unrecognized subcommand.
var ErrUnknownCommand = errors.New("unknown command")

// Command is one parsed CLI invocation.
type Command struct {
	Name string
	// Date is the process target (YYYY-MM-DD); empty means tomorrow.
	Date string
	// Title renders the title image together with the event images.
	Title bool
}

// Usage lists the subcommands.
const Usage = `usage: eventposter [-config path] <command> [flags]

commands:
  fetch              fetch venue listings and save fetched-events.json
  process [-date D]  extract details for date D (default tomorrow)
  images [-title]    render event images, optionally with the title image
  morning            fetch, process, render and send the review poll
  post               collect the poll, render the title, finalize and publish
  review             legacy in-process review
  run                legacy end-to-end flow in one process
  schedule           run morning and post daily at the configured times
  setup              check the configuration and clear the post directory
  status             print the last run of every stage from the ledger`

// ParseCommand reads the subcommand and its flags.
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("%w: none given", ErrUnknownCommand)
	}

	cmd := Command{Name: args[0]}
	fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch cmd.Name {
	case CmdProcess:
		fs.StringVar(&cmd.Date, "date", "", "target date YYYY-MM-DD")
	case CmdImages:
		fs.BoolVar(&cmd.Title, "title", false, "render the title image")
	case CmdFetch, CmdMorning, CmdPost, CmdReview, CmdRun, CmdSchedule, CmdSetup, CmdStatus:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}

	if err := fs.Parse(args[1:]); err != nil {
		return Command{}, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	if fs.NArg() > 0 {
		return Command{}, fmt.Errorf("%s: unexpected arguments %v", cmd.Name, fs.Args())
	}
	if cmd.Date != "" {
		if _, err := time.Parse(time.DateOnly, cmd.Date); err != nil {
			return Command{}, fmt.Errorf("process: -date must be YYYY-MM-DD: %w", err)
		}
	}
	return cmd, nil
}

// needs returns the configuration groups a command depends on.
func (c Command) needs() []config.Need {
	switch c.Name {
	case CmdFetch:
		return []config.Need{config.NeedVenues}
	case CmdProcess:
		return []config.Need{config.NeedExtractor}
	case CmdMorning, CmdRun, CmdSchedule:
		return []config.Need{config.NeedVenues, config.NeedExtractor, config.NeedTelegram}
	case CmdPost, CmdReview:
		return []config.Need{config.NeedTelegram}
	case CmdSetup:
		return []config.Need{config.NeedVenues, config.NeedExtractor, config.NeedTelegram, config.NeedPublisher}
	default:
		return nil
	}
}

// usesTelegram reports whether the command talks to the chat.
func (c Command) usesTelegram() bool {
	switch c.Name {
	case CmdMorning, CmdPost, CmdReview, CmdRun, CmdSchedule:
		return true
	default:
		return false
	}
}
