// Package errors provides coded, user-facing errors for the renderer and its
// command-line tools.
//
// Packages report failures with their own sentinel errors. When a failure has
// to be shown to a person (CLI output, a server log line meant for operators)
// it is converted with Classify, which maps the sentinel to a registered code
// carrying a short message, a longer explanation and a hint.
//
// # Error Categories
//
//   - protocol: the edit stream broke an invariant (unknown id, wrong kind)
//   - allocation: the native document could not create a node
//   - eval: a script failed or the eval channel was closed
//   - hotreload: the reload connection or a reload message failed
//   - ingest: a file handle could not be stored or claimed
//   - config: the configuration file is unreadable or invalid
//
// # Usage
//
//	if err := r.Apply(ctx, batch); err != nil {
//	    fmt.Fprint(os.Stderr, errors.Classify(err).Format())
//	}
//
//	// ERROR R001: Unknown node id
//	//
//	//   An edit referenced a node id that is not registered. ...
//	//
//	//   Hint: Reset the renderer and re-render from scratch.
package errors
