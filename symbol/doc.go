// Package symbol bridges Go strings and host symbols.
//
// Host symbols are interned, deduplicated and never freed, so two Refs with
// equal text always point at the same host entry and comparing Refs is a
// single integer comparison. Reading a Ref copies the text out of host
// memory without consuming the entry.
package symbol
