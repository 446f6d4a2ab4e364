// cmd/vsctool
//
// Offline tool for .vsc save files: create, inspect, and play them from a
// terminal without the HTTP server.
//
//	vsctool new --size 6 --level 2 board.vsc
//	vsctool inspect board.vsc
//	vsctool barrier --row 1 --col 3 board.vsc
//	vsctool spread --ticks 2 board.vsc
//	vsctool check board.vsc
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"

	"github.com/robalobadob/virusspread/internal/game"
	"github.com/robalobadob/virusspread/internal/savecodec"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("vsctool")
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "vsctool"
	app.Usage = "create, inspect and play virus spread save files"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "verbose", Usage: "debug logging"},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("verbose") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:      "new",
			Usage:     "start a fresh level and save it",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "size", Value: game.DefaultSize, Usage: "board side length"},
				cli.IntFlag{Name: "level", Value: 1, Usage: "level to start at"},
				cli.Int64Flag{Name: "seed", Usage: "random seed (0 picks one from the clock)"},
			},
			Action: cmdNew,
		},
		{
			Name:      "inspect",
			Usage:     "print the board and its status",
			ArgsUsage: "FILE",
			Action:    cmdInspect,
		},
		{
			Name:      "barrier",
			Usage:     "place a barrier and save",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "row", Value: -1},
				cli.IntFlag{Name: "col", Value: -1},
			},
			Action: cmdBarrier,
		},
		{
			Name:      "spread",
			Usage:     "run spread ticks and save",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "ticks", Value: 1, Usage: "ticks to run; stops early when the level ends"},
				cli.Int64Flag{Name: "seed", Usage: "random seed (0 picks one from the clock)"},
			},
			Action: cmdSpread,
		},
		{
			Name:      "check",
			Usage:     "report free cells the infection can no longer reach",
			ArgsUsage: "FILE",
			Action:    cmdCheck,
		},
	}
	return app
}

func rngFor(c *cli.Context) game.Rand {
	if seed := c.Int64("seed"); seed != 0 {
		return game.NewRand(seed)
	}
	return game.NewTimeRand()
}

func fileArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", cli.NewExitError("expected exactly one FILE argument", 2)
	}
	return c.Args().First(), nil
}

// load reads path and rebuilds the game. Any stored level is accepted.
func load(c *cli.Context, path string) (*game.Game, error) {
	snap, err := savecodec.LoadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := game.Restore(snap, game.Options{MaxLevel: game.MaxLevelLimit, Rand: rngFor(c)})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("file", path).Int("size", g.Size()).Int("level", g.Level()).Msg("loaded")
	return g, nil
}

func save(path string, g *game.Game) error {
	if err := savecodec.SaveFile(path, g.Snapshot()); err != nil {
		return err
	}
	log.Debug().Str("file", path).Int("bytes", savecodec.EncodedLen(g.Size())).Msg("saved")
	return nil
}

func cmdNew(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	g, err := game.New(game.Options{
		Size:     c.Int("size"),
		Level:    c.Int("level"),
		MaxLevel: game.MaxLevelLimit,
		Rand:     rngFor(c),
	})
	if err != nil {
		return err
	}
	if err := save(path, g); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, render(g))
	return nil
}

func cmdInspect(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	g, err := load(c, path)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, render(g))
	return nil
}

func cmdBarrier(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	g, err := load(c, path)
	if err != nil {
		return err
	}
	if err := g.PlaceBarrier(c.Int("row"), c.Int("col")); err != nil {
		return err
	}
	if err := save(path, g); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, render(g))
	return nil
}

func cmdSpread(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	g, err := load(c, path)
	if err != nil {
		return err
	}
	if g.Status() != game.StatusPlaying {
		return game.ErrGameOver
	}
	total := 0
	for i := 0; i < c.Int("ticks") && g.Status() == game.StatusPlaying; i++ {
		fresh := g.SpreadVirus()
		total += len(fresh)
		log.Debug().Int("tick", i+1).Int("new", len(fresh)).Msg("spread")
	}
	if err := save(path, g); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d new infections\n", total)
	fmt.Fprintln(c.App.Writer, render(g))
	return nil
}

func cmdCheck(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	g, err := load(c, path)
	if err != nil {
		return err
	}
	islands := g.Islands()
	if len(islands) == 0 {
		fmt.Fprintln(c.App.Writer, "ok: every free cell is reachable")
		return nil
	}
	for _, at := range islands {
		fmt.Fprintf(c.App.Writer, "unreachable: (%d,%d)\n", at.Row, at.Col)
	}
	return cli.NewExitError(fmt.Sprintf("%d unreachable free cells", len(islands)), 1)
}
