// Package crawler implements the breadth-first site walker that feeds the
// chatbot corpus: URL normalization, domain scoping, robots enforcement,
// sitemap seeding, visible-text extraction and the single-threaded frontier
// engine that ties them together.
package crawler
