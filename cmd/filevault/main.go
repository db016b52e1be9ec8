/*
NAME
  main.go

DESCRIPTION
  filevault is the command line front-end for the FileVault codec:
  encode, decode, info, verify and watch subcommands, parsed with the
  standard flag package the way cmd/rv/main.go parses its own flags —
  no third-party flag library here either.

LICENSE
  This software is Copyright (C) 2024 vaultcodec authors. All Rights
  Reserved.
*/

// Command filevault encodes arbitrary files into FileVault videos and
// decodes them back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/vaultcodec/filevault/decoder"
	"github.com/vaultcodec/filevault/encoder"
	"github.com/vaultcodec/filevault/internal/frame"
	"github.com/vaultcodec/filevault/internal/transcode"
	"github.com/vaultcodec/filevault/internal/vlog"
	"github.com/vaultcodec/filevault/internal/watch"
)

const version = "v0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "encode":
		err = runEncode(os.Args[2:])
	case "decode":
		err = runDecode(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "-version", "--version", "version":
		fmt.Println(version)
		return
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "filevault:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: filevault <encode|decode|info|verify|watch> [flags]")
}

func parseMode(s string) (encoder.Mode, error) {
	switch s {
	case "youtube", "":
		return encoder.ModeYouTube, nil
	case "local":
		return encoder.ModeLocal, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

func parseResolution(s string) (w, h int, err error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q, want WxH", s)
	}
	w, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution width: %w", err)
	}
	h, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution height: %w", err)
	}
	return w, h, nil
}

func newLogger(logFile string) vlog.Logger {
	return vlog.New(vlog.Info, logFile)
}

func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	input := fs.String("input", "", "path of the file to encode")
	output := fs.String("output", "", "output video path (default: <input>.mp4)")
	modeFlag := fs.String("mode", "youtube", "youtube or local")
	blockSize := fs.Int("block-size", 0, "override the mode's default block size")
	resolution := fs.String("resolution", "640x480", "frame resolution WxH")
	fps := fs.Int("fps", 10, "frames per second")
	repeat := fs.Int("repeat", 1, "data frame repetition count")
	password := fs.String("password", "", "obfuscation password")
	logFile := fs.String("log-file", "", "rotated log file path")
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		*input = args[0]
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return encoder.ErrInputMissing
	}

	mode, err := parseMode(*modeFlag)
	if err != nil {
		return err
	}
	w, h, err := parseResolution(*resolution)
	if err != nil {
		return err
	}

	out := *output
	if out == "" {
		out = *input + ".mp4"
	}

	log := newLogger(*logFile)

	opts := []encoder.Option{
		encoder.WithRepeat(*repeat),
		encoder.WithPassword(*password),
		encoder.WithLogger(log),
	}
	if *blockSize > 0 {
		opts = append(opts, encoder.WithBlockSize(*blockSize))
	}

	cfg, err := encoder.New(*input, mode, w, h, *fps, opts...)
	if err != nil {
		return err
	}

	tMode := transcode.ModeYouTube
	if mode == encoder.ModeLocal {
		tMode = transcode.ModeLocal
	}
	geom := frame.Geometry{Width: cfg.Width, Height: cfg.Height, BlockSize: cfg.BlockSize}
	sink, err := transcode.NewEncoder(out, geom, cfg.FPS, tMode)
	if err != nil {
		return err
	}

	frames, err := encoder.Encode(cfg, sink)
	if err != nil {
		_ = sink.Close()
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}

	log.Info("encode finished", "output", out, "data_frames", frames)
	fmt.Println(out)
	return nil
}

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	input := fs.String("input", "", "path of the video to decode")
	outDir := fs.String("output", ".", "output directory")
	password := fs.String("password", "", "obfuscation password")
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		*input = args[0]
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return encoder.ErrInputMissing
	}

	res, err := decodeFile(*input, *password, false)
	if err != nil {
		return err
	}

	path := uniquePath(filepath.Join(*outDir, res.Filename))
	if err := os.WriteFile(path, res.Data, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	if !res.HashOK {
		fmt.Fprintln(os.Stderr, "filevault: warning: recovered file hash does not match recorded hash")
	}
	fmt.Println(path)
	return nil
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	input := fs.String("input", "", "path of the video to verify")
	password := fs.String("password", "", "obfuscation password")
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		*input = args[0]
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return encoder.ErrInputMissing
	}

	_, err := decodeFile(*input, *password, true)
	if err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

// decodeFile probes the video at path, decodes it, and returns the
// result. If verify is true, a hash mismatch is reported as an error.
func decodeFile(path, password string, verify bool) (*decoder.Result, error) {
	w, h, err := transcode.Probe(path)
	if err != nil {
		return nil, err
	}

	src, err := transcode.NewDecoder(path, frame.Geometry{Width: w, Height: h})
	if err != nil {
		return nil, err
	}
	defer src.Close()

	opts := []decoder.Option{decoder.WithLogger(newLogger("")), decoder.WithVerify(verify)}
	if password != "" {
		opts = append(opts, decoder.WithPassword(password))
	}
	cfg, err := decoder.New(w, h, opts...)
	if err != nil {
		return nil, err
	}

	return decoder.Decode(cfg, src)
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	input := fs.String("input", "", "path of the video to inspect")
	plotPath := fs.String("plot", "", "write a calibration diagnostic chart to this PNG path")
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		*input = args[0]
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return encoder.ErrInputMissing
	}

	return printInfo(*input, *plotPath)
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	dir := fs.String("dir", "", "directory to watch")
	modeFlag := fs.String("mode", "youtube", "youtube or local")
	resolution := fs.String("resolution", "640x480", "frame resolution WxH")
	fps := fs.Int("fps", 10, "frames per second")
	repeat := fs.Int("repeat", 1, "data frame repetition count")
	password := fs.String("password", "", "obfuscation password")
	logFile := fs.String("log-file", "", "rotated log file path")
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		*dir = args[0]
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		return fmt.Errorf("watch: directory required")
	}

	mode, err := parseMode(*modeFlag)
	if err != nil {
		return err
	}
	w, h, err := parseResolution(*resolution)
	if err != nil {
		return err
	}

	log := newLogger(*logFile)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watch.Run(ctx, &watch.Config{
		Dir:           *dir,
		Mode:          mode,
		Width:         w,
		Height:        h,
		FPS:           *fps,
		Repeat:        *repeat,
		Password:      *password,
		Log:           log,
		NotifySystemd: true,
	})
}

// uniquePath appends _1, _2, ... before path's extension until a free
// name is found.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
