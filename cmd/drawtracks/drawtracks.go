// drawtracks renders a reframing result into one PNG per scene: the fixed
// crop windows and the dynamic track trajectories, for eyeballing tracker
// behavior without loading the source video.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/fogleman/gg"
	"github.com/reframelab/reframer/server/format"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

var palette = [][3]float64{
	{0.90, 0.15, 0.15},
	{0.15, 0.55, 0.90},
	{0.15, 0.75, 0.25},
	{0.95, 0.65, 0.05},
	{0.65, 0.20, 0.80},
	{0.05, 0.70, 0.70},
}

func main() {
	parser := argparse.NewParser("drawtracks", "Render a reframing result to PNG images")
	input := parser.String("i", "input", &argparse.Options{Help: "Result JSON file", Required: true})
	outDir := parser.String("o", "outdir", &argparse.Options{Help: "Output directory", Required: false, Default: "."})
	width := parser.Int("w", "width", &argparse.Options{Help: "Canvas width in pixels", Required: false, Default: 960})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	raw, err := os.ReadFile(*input)
	check(err)
	result := format.Result{}
	check(json.Unmarshal(raw, &result))
	if result.Video.Width <= 0 || result.Video.Height <= 0 {
		check(fmt.Errorf("Result has no video dimensions"))
	}
	check(os.MkdirAll(*outDir, 0755))

	canvasW := *width
	canvasH := canvasW * result.Video.Height / result.Video.Width

	for i := range result.Scenes {
		scene := &result.Scenes[i]
		filename := filepath.Join(*outDir, fmt.Sprintf("scene-%v.png", scene.SceneID))
		check(renderScene(scene, canvasW, canvasH, filename))
		fmt.Printf("Wrote %v\n", filename)
	}
}

func renderScene(scene *format.SceneResult, width, height int, filename string) error {
	dc := gg.NewContext(width, height)
	dc.SetRGB(0.12, 0.12, 0.12)
	dc.Clear()

	w := float64(width)
	h := float64(height)

	// Trajectories are drawn as the center of each per-frame box, with old
	// frames faded, so direction of travel is visible.
	for i := range scene.DynamicTracks {
		tr := &scene.DynamicTracks[i]
		col := palette[i%len(palette)]
		n := len(tr.Frames)
		dc.SetLineWidth(2)
		for j := 1; j < n; j++ {
			ax, ay := boxCenter(tr.Frames[j-1].Box)
			bx, by := boxCenter(tr.Frames[j].Box)
			dc.SetRGBA(col[0], col[1], col[2], 0.25+0.75*float64(j)/float64(n))
			dc.DrawLine(ax*w, ay*h, bx*w, by*h)
			dc.Stroke()
		}
		if n > 0 {
			last := tr.Frames[n-1].Box
			dc.SetRGBA(col[0], col[1], col[2], 0.9)
			dc.SetLineWidth(1.5)
			dc.DrawRectangle(float64(last[0])*w, float64(last[1])*h, float64(last[2])*w, float64(last[3])*h)
			dc.Stroke()
		}
	}

	// Fixed crop windows on top, dashed.
	for i := range scene.FixedBoxes {
		fb := &scene.FixedBoxes[i]
		col := palette[i%len(palette)]
		dc.SetRGBA(col[0], col[1], col[2], 1)
		dc.SetLineWidth(2.5)
		dc.SetDash(8, 6)
		dc.DrawRectangle(float64(fb.Box[0])*w, float64(fb.Box[1])*h, float64(fb.Box[2])*w, float64(fb.Box[3])*h)
		dc.Stroke()
		dc.SetDash()
		dc.DrawString(fmt.Sprintf("%v %v", fb.Class, fb.TrackID), float64(fb.Box[0])*w+4, float64(fb.Box[1])*h-5)
	}

	return dc.SavePNG(filename)
}

func boxCenter(b [4]float32) (float64, float64) {
	return float64(b[0]) + float64(b[2])/2, float64(b[1]) + float64(b[3])/2
}
