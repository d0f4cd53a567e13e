// Package report turns a pipeline.Result into a Markdown document, renders it
// for the terminal and plots cross-validated accuracy.
//
//	md, err := report.Markdown(res)
//	out, err := report.Render(md, "", 0)
//	err = report.SavePlot(res.Models[0], "accuracy.png")
package report
