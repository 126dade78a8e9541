// Package cli provides the capture and desktop command-line clients.
//
// The capture side (App.Capture) uploads image files straight to storage
// through presigned URLs, confirms them with the server and, when bound to
// a session, previews them on the waiting desktop over the relay. The
// desktop side (App.Desktop) opens a session and waits for the result,
// listening on the relay and polling at the same time.
//
// When stdin and stdout are terminals the commands prompt for missing
// metadata and print text; otherwise they never prompt and print JSON.
package cli
