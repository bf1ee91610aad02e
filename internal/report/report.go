// Package report renders the analysis result as one static HTML page of
// charts.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kereru-analytics/nz-mortality/internal/pipeline"
)

const monthLayout = "2006-01"

// Render writes the full report page: annual level bar chart, observed vs
// forecast with credible band, and the cumulative excess trajectory.
func Render(w io.Writer, res *pipeline.Result, title string) error {
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(
		annualBar(res, title),
		forecastLine(res),
		excessLine(res),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// annualBar charts the mean monthly death count per calendar year.
func annualBar(res *pipeline.Result, title string) *charts.Bar {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, p := range res.Series {
		if p.Placeholder {
			continue
		}
		sums[p.Date.Year()] += p.Deaths
		counts[p.Date.Year()]++
	}
	years := make([]int, 0, len(sums))
	for y := range sums {
		years = append(years, y)
	}
	sort.Ints(years)

	labels := make([]string, len(years))
	data := make([]opts.BarData, len(years))
	for i, y := range years {
		labels[i] = fmt.Sprintf("%d", y)
		data[i] = opts.BarData{Value: sums[y] / float64(counts[y])}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{
		Title:    title,
		Subtitle: fmt.Sprintf("mean monthly deaths per year, run %s", res.RunID),
	}))
	bar.SetXAxis(labels).AddSeries("mean monthly deaths", data)
	return bar
}

// forecastLine charts observed monthly deaths against the model forecast and
// its 5/95 band over the full horizon.
func forecastLine(res *pipeline.Result) *charts.Line {
	observed := make(map[time.Time]float64, len(res.Series))
	for _, p := range res.Series {
		if !p.Placeholder {
			observed[p.Date] = p.Deaths
		}
	}

	labels := make([]string, len(res.Forecast))
	obsData := make([]opts.LineData, len(res.Forecast))
	pointData := make([]opts.LineData, len(res.Forecast))
	lowerData := make([]opts.LineData, len(res.Forecast))
	upperData := make([]opts.LineData, len(res.Forecast))
	for i, row := range res.Forecast {
		labels[i] = row.Date.Format(monthLayout)
		pointData[i] = opts.LineData{Value: row.Point}
		lowerData[i] = opts.LineData{Value: row.Lower}
		upperData[i] = opts.LineData{Value: row.Upper}
		if v, ok := observed[row.Date]; ok {
			obsData[i] = opts.LineData{Value: v}
		} else {
			obsData[i] = opts.LineData{Value: "-"}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(charts.WithTitleOpts(opts.Title{
		Title:    "Observed vs expected monthly deaths",
		Subtitle: fmt.Sprintf("model trained on data before %s", res.Cutoff.Format("2006-01-02")),
	}))
	line.SetXAxis(labels).
		AddSeries("observed", obsData).
		AddSeries("expected", pointData).
		AddSeries("5th percentile", lowerData).
		AddSeries("95th percentile", upperData)
	return line
}

// excessLine charts the cumulative excess-mortality trajectory with its
// credible band from the cutoff onward.
func excessLine(res *pipeline.Result) *charts.Line {
	labels := make([]string, len(res.Excess))
	meanData := make([]opts.LineData, len(res.Excess))
	lowerData := make([]opts.LineData, len(res.Excess))
	upperData := make([]opts.LineData, len(res.Excess))
	for i, s := range res.Excess {
		labels[i] = s.Date.Format(monthLayout)
		meanData[i] = opts.LineData{Value: s.CumDeltaMean}
		lowerData[i] = opts.LineData{Value: s.CumDeltaLower}
		upperData[i] = opts.LineData{Value: s.CumDeltaUpper}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(charts.WithTitleOpts(opts.Title{
		Title:    "Cumulative excess mortality",
		Subtitle: "running sum of expected minus observed deaths, 5/95 band",
	}))
	line.SetXAxis(labels).
		AddSeries("mean", meanData).
		AddSeries("5th percentile", lowerData).
		AddSeries("95th percentile", upperData)
	return line
}
