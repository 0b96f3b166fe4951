// Command torrentd runs a single session: it loads a config file, opens
// the session runtime, adds any torrent files given on the command line,
// and prints alerts and a piece-verification progress bar to the
// terminal until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kingpin"
	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	rain "github.com/kagen/torrentd"
	"github.com/kagen/torrentd/internal/rpc"
	"github.com/kagen/torrentd/session"
)

var (
	app        = kingpin.New("torrentd", "A BitTorrent session daemon")
	configPath = app.Flag("config", "Path to a YAML config file").Default("~/.torrentd/config.yaml").String()
	destDir    = app.Flag("dest", "Directory to download torrents into").Default(".").String()
	torrents   = app.Arg("torrent", ".torrent files to add on startup").Strings()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := rain.LoadConfig(*configPath)
	if err != nil {
		fatal(err)
	}

	s, err := session.New(cfg.SessionConfig())
	if err != nil {
		fatal(err)
	}
	defer s.Close()

	if err := s.ListenOn("0.0.0.0", cfg.PortBegin); err != nil {
		fatal(err)
	}

	rpcServer := rpc.New(s)
	if err := rpcServer.Start(cfg.RPCHost, cfg.RPCPort); err != nil {
		fatal(err)
	}
	defer rpcServer.Close()

	var bars []*progressbar.ProgressBar
	if term.IsTerminal(int(os.Stdout.Fd())) {
		for _, path := range *torrents {
			bars = append(bars, progressbar.NewOptions(100,
				progressbar.OptionSetDescription(path),
				progressbar.OptionShowCount(),
			))
		}
	}

	for _, path := range *torrents {
		f, err := os.Open(path)
		if err != nil {
			colorstring.Println("[red]error opening " + path + ": " + err.Error())
			continue
		}
		_, err = s.AddTorrent(f, *destDir)
		f.Close()
		if err != nil {
			colorstring.Println("[red]error adding " + path + ": " + err.Error())
			continue
		}
		colorstring.Println("[green]added " + path)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sig:
			return
		case <-ticker.C:
			drainAlerts(s)
			updateBars(s, bars)
		}
	}
}

func drainAlerts(s *session.Session) {
	for {
		a, ok := s.PopAlert()
		if !ok {
			return
		}
		printAlert(a)
	}
}

func printAlert(a session.Alert) {
	switch a.Severity {
	case session.SeverityFatal:
		colorstring.Println("[red]" + string(a.Kind) + ": " + a.Message)
	case session.SeverityWarning:
		colorstring.Println("[yellow]" + string(a.Kind) + ": " + a.Message)
	default:
		colorstring.Println("[light_gray]" + string(a.Kind) + ": " + a.Message)
	}
}

func updateBars(s *session.Session, bars []*progressbar.ProgressBar) {
	torrents := s.GetTorrents()
	for i, t := range torrents {
		if i >= len(bars) {
			break
		}
		done := 0
		if t.State() == session.TorrentSeeding {
			done = 100
		}
		bars[i].Set(done)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
