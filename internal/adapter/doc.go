// Package adapter provides configurable board adapters. A table adapter
// reads HTML list tables through CSS selectors; an API adapter reads JSON
// list endpoints. Both parse detail pages the same way.
//
// Site-specific adapters with their own parsing code can implement
// crawler.Adapter directly; these cover the boards that only differ in
// selectors, pagination and URL templates.
package adapter
