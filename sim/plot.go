package sim

import (
	"image/color"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// NewTrajectoryPlot creates top-down plot of the simulation from three data sources:
// truth:     true rig positions
// filter:    filter position estimates
// landmarks: landmark positions, may be nil
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * truth or filter contain fewer than 2 positions
// * gonum plot fails to be created
func NewTrajectoryPlot(truth, filter, landmarks []r3.Vector) (*plot.Plot, error) {
	if len(truth) < 2 || len(filter) < 2 {
		return nil, errors.Errorf("invalid data supplied: %d truth, %d filter positions", len(truth), len(filter))
	}

	p := plot.New()

	p.Title.Text = "Trajectory"
	p.X.Label.Text = "X [m]"
	p.Y.Label.Text = "Y [m]"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	truthLine, err := plotter.NewLine(makePoints(truth))
	if err != nil {
		return nil, errors.Wrap(err, "truth line")
	}
	truthLine.LineStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	truthLine.LineStyle.Width = vg.Points(1)

	p.Add(truthLine)
	p.Legend.Add("truth", truthLine)

	filterScatter, err := plotter.NewScatter(makePoints(filter))
	if err != nil {
		return nil, errors.Wrap(err, "filter scatter")
	}
	filterScatter.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
	filterScatter.Shape = draw.CrossGlyph{}
	filterScatter.GlyphStyle.Radius = vg.Points(2)

	p.Add(filterScatter)
	p.Legend.Add("filtered", filterScatter)

	if len(landmarks) > 0 {
		lmScatter, err := plotter.NewScatter(makePoints(landmarks))
		if err != nil {
			return nil, errors.Wrap(err, "landmark scatter")
		}
		lmScatter.GlyphStyle.Color = color.RGBA{G: 255, A: 128}
		lmScatter.Shape = draw.PyramidGlyph{}
		lmScatter.GlyphStyle.Radius = vg.Points(2)

		p.Add(lmScatter)
		p.Legend.Add("landmarks", lmScatter)
	}

	return p, nil
}

func makePoints(v []r3.Vector) plotter.XYs {
	pts := make(plotter.XYs, len(v))
	for i := range v {
		pts[i].X = v[i].X
		pts[i].Y = v[i].Y
	}

	return pts
}
