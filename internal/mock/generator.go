package mock

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// mockSession drives the output of one fake game server.
type mockSession struct {
	name    string
	pattern string
	players []string
	online  map[string]bool
}

// Generator appends plausible game-server console output to a Bridge on a
// fixed period.
type Generator struct {
	bridge   *Bridge
	sessions []*mockSession
	interval time.Duration
	rng      *rand.Rand
}

var mockPlayers = []string{"Steve", "Alex", "Notch", "Herobrine", "Kai", "Zuri", "Makena"}

var patterns = []string{"steady", "burst", "quiet"}

// NewGenerator returns a generator for the named sessions. Patterns are
// assigned round-robin.
func NewGenerator(b *Bridge, names []string, interval time.Duration) *Generator {
	g := &Generator{
		bridge:   b,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i, name := range names {
		g.sessions = append(g.sessions, &mockSession{
			name:    name,
			pattern: patterns[i%len(patterns)],
			players: mockPlayers,
			online:  make(map[string]bool),
		})
	}
	return g
}

// Start writes a boot banner for every session and then keeps producing
// output until ctx is done.
func (g *Generator) Start(ctx context.Context) {
	for _, ms := range g.sessions {
		g.bridge.Append(ms.name,
			"[Server thread/INFO]: Starting minecraft server version 1.21.4",
			fmt.Sprintf("[Server thread/INFO]: Preparing level \"%s\"", ms.name),
			"[Server thread/INFO]: Done (4.217s)! For help, type \"help\"",
		)
	}
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			for _, ms := range g.sessions {
				if lines := g.advance(ms, tick); len(lines) > 0 {
					g.bridge.Append(ms.name, lines...)
				}
			}
		}
	}
}

func (g *Generator) advance(ms *mockSession, tick int) []string {
	switch ms.pattern {
	case "steady":
		return []string{g.event(ms)}
	case "burst":
		if tick%5 != 0 {
			return nil
		}
		n := 2 + g.rng.Intn(4)
		lines := make([]string, 0, n)
		for i := 0; i < n; i++ {
			lines = append(lines, g.event(ms))
		}
		return lines
	default:
		if tick%20 != 0 {
			return nil
		}
		return []string{"[Server thread/INFO]: Saving the game (this may take a moment!)", "[Server thread/INFO]: Saved the game"}
	}
}

// event produces one console line, keeping joins and leaves consistent.
func (g *Generator) event(ms *mockSession) string {
	player := ms.players[g.rng.Intn(len(ms.players))]
	switch {
	case !ms.online[player]:
		ms.online[player] = true
		return fmt.Sprintf("[Server thread/INFO]: %s joined the game", player)
	case g.rng.Intn(4) == 0:
		delete(ms.online, player)
		return fmt.Sprintf("[Server thread/INFO]: %s left the game", player)
	default:
		return fmt.Sprintf("[Async Chat Thread/INFO]: <%s> §a%s", player, chatter[g.rng.Intn(len(chatter))])
	}
}

var chatter = []string{
	"anyone got spare iron?",
	"base is at 120 64 -340",
	"brb",
	"found diamonds!!",
	"who left the nether portal open",
	"gg",
}
