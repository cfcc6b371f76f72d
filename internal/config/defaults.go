// ABOUTME: Centralized configuration defaults for nexifeed
// ABOUTME: Contains the tunables for fetching, scheduling, ingestion, and storage

package config

import "time"

// HTTP settings
const (
	DefaultHTTPTimeout = 30 * time.Second
	DefaultHTTPAddr    = ":8080"
)

// Ingestion settings
const (
	DefaultMaxItems       = 3
	DefaultImportMaxItems = 25
	DefaultConcurrency    = 4
)

// Scheduler settings
const (
	DefaultSchedulerInterval = 60 * time.Second
	DefaultFeedTimeout       = 2 * time.Minute
)

// Event settings
const (
	DefaultEventQueueSize = 256
	DefaultEventWorkers   = 2
)

// Storage settings
const (
	DefaultBackend       = "sqlite"
	DefaultDBFilename    = "nexifeed.db"
	DefaultMongoDatabase = "nexifeed"
	DefaultDirPerms      = 0755
)

// Messaging settings
const (
	DefaultNATSSubject = "nexifeed.items.created"
)

// Listing settings
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// OPMLExportTitle is the head title of exported subscription lists.
const OPMLExportTitle = "NexiRSS Feeds"
