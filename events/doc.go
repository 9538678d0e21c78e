// Package events defines the subject taxonomy and typed payload schemas
// for everything that travels over the bus. It is the leaf package of the
// system: every agent, the scheduler and the bus itself depend on it, and
// it depends on nothing but the codec.
//
// Design decisions:
//   - Compile-time subjects: subjects are append-only constants following
//     the <namespace>.<module>.<event-type> convention. No dynamic subject
//     construction exists anywhere in the codebase.
//   - One schema per subject: each subject has exactly one canonical
//     payload type, and each payload type knows its canonical subject.
//   - Correlation: every payload downstream of an input event carries the
//     input_id minted by the originating InputReceived event.
//   - Validation at the boundary: payloads are decoded and validated once,
//     by Decode, before any handler sees them.
//
// Example usage:
//
//	payload := events.InputReceived{
//	    UserInput: "hello",
//	    InputID:   uuidx.NewString(),
//	    Timestamp: strfmt.DateTime(time.Now().UTC()),
//	}
//	data, err := events.Marshal(payload)
//	if err != nil {
//	    return err
//	}
//	// ... publish data to payload.Subject() ...
//
//	decoded, err := events.Decode[events.InputReceived](data)
package events
