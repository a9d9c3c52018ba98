// Package annotation converts between sparse start/end annotation markers
// and dense per-sample class labels, and derives segment statistics while
// doing so.
//
// Decoding scans markers left to right. A start tag is paired with the marker
// that immediately follows it, whatever that marker's tag is, and the sample
// range [round(start*rate), round(end*rate)) is filled with the start tag's
// class. Later pairs overwrite earlier ones. Tags that are not start tags are
// skipped, and a start tag in the final position is dropped.
//
// Encoding recovers maximal runs of equal, non-None labels and emits one
// start/end marker pair per run at index/rate seconds. The same scan feeds an
// aggregator that produces types.Analytics.
//
// A Codec holds no state between calls and is safe for concurrent use.
package annotation
