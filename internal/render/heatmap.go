package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lox/climadash/internal/dataset"
	"github.com/lox/climadash/internal/models"
)

const (
	heatLabelWidth   = 110
	heatHeaderHeight = 36
	heatFooter       = 24
	heatCellHeight   = 28
	heatMinCell      = 6
)

// HeatGrid is the monthly mean anomaly per city.
type HeatGrid struct {
	Cities []string
	Months []time.Time
	Values [][]float64 // Values[city][month], NaN where no data
	Max    float64     // largest absolute value, for the color scale
}

// BucketByMonth averages the cells into a city x month grid. Cities keep
// their first-seen order; months are ascending.
func BucketByMonth(cells []dataset.HeatCell) *HeatGrid {
	grid := &HeatGrid{}
	cityIdx := map[string]int{}
	monthIdx := map[time.Time]int{}
	var first, last time.Time
	for _, c := range cells {
		if _, ok := cityIdx[c.City]; !ok {
			cityIdx[c.City] = len(grid.Cities)
			grid.Cities = append(grid.Cities, c.City)
		}
		m := monthOf(c.Date)
		if first.IsZero() || m.Before(first) {
			first = m
		}
		if m.After(last) {
			last = m
		}
	}
	if len(cells) == 0 {
		return grid
	}
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		monthIdx[m] = len(grid.Months)
		grid.Months = append(grid.Months, m)
	}

	sums := make([][]float64, len(grid.Cities))
	counts := make([][]int, len(grid.Cities))
	for i := range sums {
		sums[i] = make([]float64, len(grid.Months))
		counts[i] = make([]int, len(grid.Months))
	}
	for _, c := range cells {
		if math.IsNaN(c.Anomaly) {
			continue
		}
		ci, mi := cityIdx[c.City], monthIdx[monthOf(c.Date)]
		sums[ci][mi] += c.Anomaly
		counts[ci][mi]++
	}

	grid.Values = make([][]float64, len(grid.Cities))
	for ci := range grid.Cities {
		grid.Values[ci] = make([]float64, len(grid.Months))
		for mi := range grid.Months {
			if counts[ci][mi] == 0 {
				grid.Values[ci][mi] = math.NaN()
				continue
			}
			v := sums[ci][mi] / float64(counts[ci][mi])
			grid.Values[ci][mi] = v
			grid.Max = math.Max(grid.Max, math.Abs(v))
		}
	}
	return grid
}

// HeatMap draws the monthly anomaly grid: months across, cities down,
// blue below the baseline and red above it.
func HeatMap(w io.Writer, feature models.Feature, cells []dataset.HeatCell) error {
	grid := BucketByMonth(cells)
	if len(grid.Cities) == 0 {
		return ErrNoData
	}

	cellW := (Width - heatLabelWidth - 16) / len(grid.Months)
	if cellW < heatMinCell {
		cellW = heatMinCell
	}
	width := heatLabelWidth + cellW*len(grid.Months) + 16
	height := heatHeaderHeight + heatCellHeight*len(grid.Cities) + heatFooter

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	text := func(x, y int, s string) {
		d := &font.Drawer{Dst: img, Src: image.Black, Face: face, Dot: fixed.P(x, y)}
		d.DrawString(s)
	}

	text(8, 20, fmt.Sprintf("%s anomaly vs climatology (%s), scale ±%.1f", feature, feature.Unit(), grid.Max))

	for ci, city := range grid.Cities {
		y0 := heatHeaderHeight + ci*heatCellHeight
		text(8, y0+heatCellHeight/2+5, truncateLabel(city, (heatLabelWidth-12)/7))
		for mi := range grid.Months {
			x0 := heatLabelWidth + mi*cellW
			rect := image.Rect(x0, y0, x0+cellW-1, y0+heatCellHeight-1)
			draw.Draw(img, rect, &image.Uniform{C: diverging(grid.Values[ci][mi], grid.Max)}, image.Point{}, draw.Src)
		}
	}

	// Label every nth month so labels do not overlap.
	step := 1
	if labelW := 7 * 7; cellW < labelW {
		step = (labelW + cellW - 1) / cellW
	}
	footerY := heatHeaderHeight + heatCellHeight*len(grid.Cities) + 16
	for mi := 0; mi < len(grid.Months); mi += step {
		text(heatLabelWidth+mi*cellW, footerY, grid.Months[mi].Format("Jan 06"))
	}

	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode heat map: %w", err)
	}
	return nil
}

// diverging maps v in [-scale, scale] onto blue-white-red. NaN is light gray.
func diverging(v, scale float64) color.RGBA {
	if math.IsNaN(v) {
		return color.RGBA{R: 220, G: 220, B: 220, A: 255}
	}
	t := 0.0
	if scale > 0 {
		t = math.Max(-1, math.Min(1, v/scale))
	}
	fade := uint8(255 * (1 - math.Abs(t)))
	if t < 0 {
		return color.RGBA{R: fade, G: fade, B: 255, A: 255}
	}
	return color.RGBA{R: 255, G: fade, B: fade, A: 255}
}

func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func truncateLabel(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "."
}
