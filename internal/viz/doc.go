// Package viz renders bake output for the terminal: styled reports, run
// listings, channel plots and a braille side view of a pose.
package viz
