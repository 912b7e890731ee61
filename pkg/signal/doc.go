// Package signal defines typed realtime signals and the process-wide
// registry that catalogs them.
//
// A signal is a named, schema-typed event that backend logic can push to
// connected frontends. Definitions are registered once at startup and are
// immutable afterwards; the registry is read on every emission and every
// inbound decode, so lookups are lock-free snapshot reads.
//
// Typical setup:
//
//	var Notification = signal.New[NotificationPayload]("notification.received",
//	    signal.WithValidator(func(p NotificationPayload) error {
//	        if p.Title == "" {
//	            return errors.New("title is required")
//	        }
//	        return nil
//	    }),
//	)
//
//	reg := signal.NewRegistry()
//	if err := reg.Register(Notification); err != nil {
//	    // duplicate id: a wiring bug, fatal at startup
//	}
//
// The registry is an explicitly constructed, dependency-injected object
// rather than ambient package state, which keeps independent instances
// usable side by side in tests.
package signal
