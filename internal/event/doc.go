// Package event provides a synchronous pub-sub bus for session lifecycle
// notifications inside one duo process.
//
// The bridge publishes an event after every successful mutation or wait;
// the CLI subscribes to print progress while driving agents. Events carry
// no cross-process guarantee: a second process learns about changes only
// by reloading the session from the store.
//
// # Event Types
//
//   - [SessionCreatedEvent] ("session.created")
//   - [ExchangeAppendedEvent] ("exchange.appended")
//   - [StatusChangedEvent] ("session.status_changed")
//   - [ConflictRetriedEvent] ("session.conflict_retried")
//   - [WaitFinishedEvent] ("wait.finished")
//
// # Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeExchangeAppended, func(e event.Event) {
//	    appended := e.(event.ExchangeAppendedEvent)
//	    fmt.Printf("round %d: %s\n", appended.Round, appended.Kind)
//	})
//
// Handlers run synchronously on the publishing goroutine. A panicking
// handler is recovered and logged so other handlers still run.
package event
