// Package viz renders experiments and analysis results in the terminal.
//
//   - [RenderSummary] and [RenderComputation]: styled experiment and result panels
//   - [PlotSeries]: line charts of a computed series
//   - [Canvas] and [RenderConfiguration]: a Braille view of one configuration
//
// Colours follow the current [Theme], selected with [SetTheme].
package viz
