// Command dirwatch watches one or more directories and prints the change
// events dirwatch reports for them. It exists as a usage example and a
// manual debugging tool, grounded on the teacher's cmd/fsnotify/main.go and
// watch.go.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dirwatch/dirwatch"
)

func usage() {
	fmt.Fprint(os.Stderr, `usage: dirwatch [-r] [-poll d] dir [dir ...]

Watches the given directories and prints each reported change as it
arrives. Set DIRWATCH_DEBUG=1 to also print backend-level debug traces.

  -r        watch each directory recursively
  -poll d   poll interval for the generic fallback backend (default 1s)
`)
	os.Exit(2)
}

// printer implements dirwatch.Listener by printing each event, prefixed
// with a timestamp (a shorter stand-in for log.Print, matching the
// teacher's printTime helper).
type printer struct{}

func (printer) HandleFileAction(id dirwatch.WatchID, dir, name string, action dirwatch.FileAction, oldName string) {
	ts := time.Now().Format("15:04:05.0000")
	if action == dirwatch.Moved {
		fmt.Printf("%s [%d] %-8s %s%s -> %s\n", ts, id, action, dir, oldName, name)
		return
	}
	fmt.Printf("%s [%d] %-8s %s%s\n", ts, id, action, dir, name)
}

func main() {
	recursive := flag.Bool("r", false, "watch recursively")
	poll := flag.Duration("poll", time.Second, "poll interval for the generic backend")
	flag.Usage = usage
	flag.Parse()

	dirs := flag.Args()
	if len(dirs) == 0 {
		usage()
	}

	w, err := dirwatch.New(dirwatch.WithPollInterval(*poll))
	if err != nil {
		fmt.Fprintf(os.Stderr, "dirwatch: %s\n", err)
		os.Exit(1)
	}
	defer w.Close()

	l := printer{}
	for _, dir := range dirs {
		id, err := w.AddWatch(dir, l, *recursive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dirwatch: add %s: %s\n", dir, err)
			os.Exit(1)
		}
		fmt.Printf("watching [%d] %s\n", id, dir)
	}

	if err := w.Watch(); err != nil {
		fmt.Fprintf(os.Stderr, "dirwatch: %s\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
