// Package messages resolves raw validation errors into display messages.
//
// For each error the message is chosen by priority: the field's own message
// for the error kind, then the form-level default for that kind, then the
// message supplied by the validator. An error with none of the three is
// logged and left out of the display list. Validity is unaffected: the raw
// error still marks the field invalid.
//
// Messages may contain {{param}} placeholders, filled from the error's
// parameters. A placeholder naming an absent parameter stays literal.
package messages
