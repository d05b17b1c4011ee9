// Package catalog serves the local media library to the phrase resolver.
//
// SQLiteCatalog reads the media_items table. Queries are pre-filtered in
// SQL by search term and media type; the resolver applies the exact
// matching rules on what comes back.
package catalog
