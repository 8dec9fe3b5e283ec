// Package transcript accumulates recognized text for one recording session
// and detects the spoken stop phrase that ends it.
package transcript
