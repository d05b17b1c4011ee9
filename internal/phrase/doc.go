// Package phrase turns structured playback requests into playback plans.
//
// A LanguagePhrase names a receiver, a search term and how the results
// should be ordered and played. The Resolver finds the one receiver with
// that name, queries the phrase's catalog source, narrows the results and
// orders them with the queue package's strategies. It never touches queue
// or catalog state; applying a Plan is the caller's job.
package phrase
