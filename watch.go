package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/dgnsrekt/speakstream/internal/audio"
)

// settle is how long a file must stay quiet before it is spoken again.
const settle = 300 * time.Millisecond

// watch streams path and restarts the stream whenever the file changes,
// until ctx is cancelled. Each new stream replaces the previous session.
func watch(ctx context.Context, a *app, players audio.PlayerFactory, path string, w io.Writer) error {
	s, err := a.streamer(players)
	if err != nil {
		return err
	}
	defer s.StopStreaming()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("unable to get absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to watch %s: %w", path, err)
	}
	defer watcher.Close() //nolint:errcheck

	// Editors often replace files, so the directory is watched.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("unable to watch %s: %w", path, err)
	}

	var last string
	speak := func() {
		b, err := os.ReadFile(abs)
		if err != nil {
			log.Warn("Unable to read watched file", "path", path, "error", err)
			return
		}
		text := prose(input{text: string(b), path: abs}, asMarkdown, markdownOptions())
		if text == last {
			return
		}
		last = text

		_, err = s.StreamAudio(ctx, text, a.cfg.Voices.Default, a.cfg.Audio.Speed, progressPrinter(w))
		switch {
		case err == nil:
		case ctx.Err() != nil:
		default:
			log.Error("Unable to speak file", "path", path, "error", err)
		}
	}

	fmt.Fprintln(w, dimStyle.Render("watching "+path+", press ctrl+c to stop"))
	speak()

	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			log.Debug("File changed", "path", ev.Name, "op", ev.Op)
			timer.Reset(settle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Watch error", "error", err)

		case <-timer.C:
			speak()
		}
	}
}
