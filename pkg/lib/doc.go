// Package lib provides a Go SDK for the clockin time tracking companion.
//
// This package allows applications to start and stop timers, report daily
// tasks and follow the pending entries without shelling out to the clockin CLI
// binary. It is useful for status bars, editor plugins and automation.
//
// # Quick Start
//
// Create a client, log in and track time:
//
//	client, err := lib.New(ctx, lib.Config{APIURL: "https://tracker.example.com"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Start(ctx, lib.Project{ID: "p1", Name: "Backend"})
//	st, _ := client.Status(ctx)
//	fmt.Println(st.ProjectID, st.Elapsed)
//	client.Stop(ctx)
//
// # Backends
//
//   - [BackendHTTP]: The time tracking server REST API. Requires [Config].APIURL
//     and credentials set with [Client.Login].
//   - [BackendFake]: In-memory fake server for tests and demos. The state
//     doesn't outlive the client.
//
// # Live sync
//
// [Client.Run] keeps the local state in sync with the server until the context
// is cancelled. Use [Client.OnChange] to be notified of every state change,
// including the one second ticks of a running timer.
//
// # Errors
//
// Errors can be checked with [errors.Is] against [ErrNotFound],
// [ErrAlreadyExists], [ErrNotValid], [ErrLoggedOut], [ErrCommandInFlight] and
// [ErrTransient].
package lib
