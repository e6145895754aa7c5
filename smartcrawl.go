// Package smartcrawl provides a crawl orchestration engine. It turns a
// declarative crawl policy and a set of seed URLs into a bounded,
// deduplicated, retried sequence of fetch attempts, each routed through a
// proxy chosen by a continuously updated reliability model.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., sqlite/, goquery/, kafka/). The
// orchestration core lives in crawl/.
package smartcrawl
