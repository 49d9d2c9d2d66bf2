package parser

import (
	"time"

	"EventPoster/internal/scanner"
)

// Registered parser names, referenced by venues in the city config.
const (
	NameBobyhall  = "bobyhall"
	NameRA        = "ra"
	NameMetro     = "metro"
	NamePatro     = "patro"
	NamePerpetuum = "perpetuum"
	NameFleda     = "fleda"
	NameSono      = "sono"
	NameKabinet   = "kabinet"
	NameArtbar    = "artbar"
	NameRSS       = "rss"
)

// RegisterAll adds every built-in parser to reg.
func RegisterAll(reg *scanner.Registry, clock Clock, loc *time.Location) {
	l := NewListings(clock)

	reg.Register(NameBobyhall, scanner.ParserFunc(l.Bobyhall))
	reg.Register(NameRA, scanner.ParserFunc(l.RA))
	reg.Register(NameMetro, scanner.ParserFunc(l.Metro))
	reg.Register(NamePatro, scanner.ParserFunc(l.Patro))
	reg.Register(NamePerpetuum, scanner.ParserFunc(l.Perpetuum))
	reg.Register(NameFleda, scanner.ParserFunc(l.Fleda))
	reg.Register(NameSono, scanner.ParserFunc(l.Sono))
	reg.Register(NameKabinet, scanner.ParserFunc(l.Kabinet))
	reg.Register(NameArtbar, scanner.ParserFunc(l.Artbar))
	reg.Register(NameRSS, NewFeed(loc))
}
