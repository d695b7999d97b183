// boardtail opens a project view and tails its board, presence and stroke
// events. Useful for watching a board change live from a terminal.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/waldo1234567/task-management/client"
	"github.com/waldo1234567/task-management/client/connection"
	"github.com/waldo1234567/task-management/domain"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := client.LoadFileConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Project == "" {
		log.Fatal("missing project id (config file or TASKMGMT_PROJECT)")
	}

	view, err := client.OpenView(cfg.Project, client.Config{
		ServerURL: cfg.Server,
		Credentials: func(ctx context.Context) (string, error) {
			return cfg.Token, nil
		},
		OnState: func(s connection.State) {
			log.WithField("state", s).Info("connection state changed")
		},
	})
	if err != nil {
		log.Fatalf("open view: %v", err)
	}
	defer view.Close()

	view.OnStroke(func(s domain.Stroke) {
		log.WithFields(log.Fields{
			"color":  s.Color,
			"points": len(s.Points),
		}).Info("stroke received")
	})

	refresh := make(chan struct{}, 1)
	view.OnBoardStale(func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	})
	// Initial render.
	refresh <- struct{}{}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-stop:
			return
		case <-refresh:
			printBoard(view)
		}
	}
}

func printBoard(view *client.View) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	board, err := view.Board(ctx)
	if err != nil {
		log.WithError(err).Warn("board load failed")
		return
	}
	for _, col := range board.Columns {
		log.WithFields(log.Fields{
			"column": col.Column.Name,
			"tasks":  len(col.Tasks),
		}).Info("column")
		for _, t := range col.Tasks {
			log.Infof("  [%s] %s (%s)", t.Status, t.Title, t.ID)
		}
	}
	for _, m := range view.Members() {
		log.WithField("user", m.UserID).Info("present")
	}
}
