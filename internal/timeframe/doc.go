// Package timeframe implements cyclic visibility windows.
//
// A Window constrains one calendar field (minute of day, weekday, day of
// month, month) to an inclusive ordinal range that may wrap around the
// field's modulus (Nov..Feb, Fri..Mon, 22:00..06:00). A Composite ANDs up to
// one window of each kind and answers two questions: is an instant inside,
// and when is the next instant at which that answer flips.
//
// All computation happens at minute granularity in the location of the
// instant passed in.
package timeframe
