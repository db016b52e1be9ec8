/*
NAME
  info.go

DESCRIPTION
  info.go implements the "info" subcommand: probe a FileVault video's
  metadata record and calibration diagnostics without writing a decoded
  file, and optionally render the per-channel offsets and block error
  rate to a bar chart via gonum.org/v1/plot.

LICENSE
  This software is Copyright (C) 2024 vaultcodec authors. All Rights
  Reserved.
*/

package main

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/vaultcodec/filevault/decoder"
	"github.com/vaultcodec/filevault/internal/frame"
	"github.com/vaultcodec/filevault/internal/transcode"
)

func printInfo(path, plotPath string) error {
	w, h, err := transcode.Probe(path)
	if err != nil {
		return err
	}

	src, err := transcode.NewDecoder(path, frame.Geometry{Width: w, Height: h})
	if err != nil {
		return err
	}
	defer src.Close()

	cfg, err := decoder.New(w, h)
	if err != nil {
		return err
	}

	rec, info, err := decoder.Probe(cfg, src)
	if err != nil {
		return err
	}

	fmt.Printf("filename:     %s\n", rec.Filename)
	fmt.Printf("resolution:   %dx%d\n", w, h)
	fmt.Printf("block size:   %d\n", info.BlockSize)
	fmt.Printf("bpc:          %d\n", info.BPC)
	fmt.Printf("legacy:       %v\n", info.Legacy)
	fmt.Printf("compressed:   %v\n", rec.Compressed)
	fmt.Printf("encrypted:    %v\n", rec.Encrypted)
	fmt.Printf("repeat:       %d\n", rec.Repeat)
	fmt.Printf("original size: %d\n", rec.OriginalSize)
	fmt.Printf("payload size:  %d\n", rec.PayloadSize)
	if !info.Legacy {
		fmt.Printf("color offset: R=%d G=%d B=%d\n", info.ROffset, info.GOffset, info.BOffset)
		fmt.Printf("block error rate: %.4f\n", info.ErrorRate)
	}

	if plotPath != "" {
		return renderOffsetPlot(plotPath, info)
	}
	return nil
}

// renderOffsetPlot writes a bar chart of the per-channel color offsets
// and the block error rate (multiplied by 255, so a rate of 1.0 spans
// the full 0-255 axis) to path.
func renderOffsetPlot(path string, info decoder.ProbeInfo) error {
	p := plot.New()
	p.Title.Text = "FileVault calibration diagnostics"
	p.Y.Label.Text = "offset (levels)"

	values := plotter.Values{
		float64(info.ROffset),
		float64(info.GOffset),
		float64(info.BOffset),
		info.ErrorRate * 255,
	}
	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return fmt.Errorf("build bar chart: %w", err)
	}
	p.Add(bars)
	p.NominalX("R offset", "G offset", "B offset", "error rate x255")

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
