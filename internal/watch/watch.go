/*
NAME
  watch.go

DESCRIPTION
  watch supplements the distilled specification with unattended
  operation: a directory watched with fsnotify, debounced per path so a
  file still being written does not trigger repeated encodes, each
  settled file driven through the encoder and transcode packages the
  same way cmd/filevault's own encode subcommand does, and readiness
  reported to systemd once the watch loop is armed.

LICENSE
  This software is Copyright (C) 2024 vaultcodec authors. All Rights
  Reserved.
*/

// Package watch implements a directory-watch daemon that auto-encodes
// newly-settled files into FileVault videos.
package watch

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/vaultcodec/filevault/encoder"
	"github.com/vaultcodec/filevault/internal/frame"
	"github.com/vaultcodec/filevault/internal/transcode"
	"github.com/vaultcodec/filevault/internal/vlog"
)

// defaultSettleDelay is how long a path must go quiet before it is
// considered settled and ready to encode.
const defaultSettleDelay = 2 * time.Second

// Config configures the watch daemon.
type Config struct {
	Dir           string
	Mode          encoder.Mode
	Width         int
	Height        int
	FPS           int
	Repeat        int
	Password      string
	SettleDelay   time.Duration
	Log           vlog.Logger
	NotifySystemd bool
}

// Run watches c.Dir until ctx is cancelled, encoding each settled file
// into "<name>.mp4" alongside the source. Errors encoding one file are
// logged and do not stop the watch loop.
func Run(ctx context.Context, c *Config) error {
	if c.Log == nil {
		c.Log = vlog.Discard
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "watch: create fsnotify watcher")
	}
	defer w.Close()

	if err := w.Add(c.Dir); err != nil {
		return errors.Wrapf(err, "watch: add directory %s", c.Dir)
	}

	pending := make(map[string]*time.Timer)
	settled := make(chan string, 16)

	c.Log.Info("watch armed", "dir", c.Dir)
	if c.NotifySystemd {
		sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
		if err != nil {
			c.Log.Warning("systemd notify failed", "error", err)
		} else if !sent {
			c.Log.Debug("systemd notify not supported on this platform")
		}
	}

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			path := ev.Name
			if t, ok := pending[path]; ok {
				t.Stop()
			}
			pending[path] = time.AfterFunc(c.SettleDelay, func() {
				settled <- path
			})

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.Log.Error("fsnotify error", "error", err)

		case path := <-settled:
			delete(pending, path)
			if err := encodeOne(c, path); err != nil {
				c.Log.Error("auto-encode failed", "path", path, "error", err)
			}
		}
	}
}

// encodeOne runs the standard encoder driver over path, writing
// "<name>.mp4" alongside it via internal/transcode.
func encodeOne(c *Config, path string) error {
	out := path + ".mp4"
	c.Log.Info("encoding settled file", "path", path, "output", out)

	cfg, err := encoder.New(path, c.Mode, c.Width, c.Height, c.FPS,
		encoder.WithRepeat(maxInt(c.Repeat, 1)),
		encoder.WithPassword(c.Password),
		encoder.WithLogger(c.Log),
	)
	if err != nil {
		return errors.Wrap(err, "watch: configure encoder")
	}

	transcodeMode := transcode.ModeYouTube
	if c.Mode == encoder.ModeLocal {
		transcodeMode = transcode.ModeLocal
	}
	geom := frame.Geometry{Width: cfg.Width, Height: cfg.Height, BlockSize: cfg.BlockSize}
	sink, err := transcode.NewEncoder(out, geom, cfg.FPS, transcodeMode)
	if err != nil {
		return errors.Wrap(err, "watch: start transcoder")
	}

	if _, err := encoder.Encode(cfg, sink); err != nil {
		_ = sink.Close()
		return errors.Wrap(err, "watch: encode")
	}
	return sink.Close()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
