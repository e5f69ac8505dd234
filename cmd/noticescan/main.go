// Package main provides the entry point for the noticescan CLI.
//
// noticescan crawls the public-notice boards listed in a site registry,
// writes every new announcement to output/<site>/NNN_<title>/ and
// downloads its attachments. Titles seen before are remembered per site
// so that a scheduled run stops as soon as it reaches known notices.
//
// Usage:
//
//	noticescan scan kiat
//	noticescan scan --all --markdown --report-file run.md
//
// See --help for all available options.
package main

// main is the entry point for noticescan.
func main() {
	Execute()
}
